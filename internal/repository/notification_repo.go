package repository

import (
	"context"
	"database/sql"
	"fmt"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification stores one unread notification
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.IsRead = false
	n.CreatedAt = now()

	query := `
		INSERT INTO notifications (id, user_id, title, message, type, is_read, related_task_id, related_reward_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, string(n.Type), n.IsRead,
		nullString(n.RelatedTaskID), nullString(n.RelatedRewardID), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, is_read, related_task_id, related_reward_id, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var (
			n             models.Notification
			notifType     string
			relatedTask   sql.NullString
			relatedReward sql.NullString
		)
		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &notifType, &n.IsRead,
			&relatedTask, &relatedReward, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.Type, err = models.ParseNotificationType(notifType); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.RelatedTaskID = stringPtr(relatedTask)
		n.RelatedRewardID = stringPtr(relatedReward)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead marks one of userID's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?", true, id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return result.RowsAffected()
}

// MarkAllRead marks every unread notification of userID as read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?", true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// CountUnread counts userID's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?", userID, false).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
