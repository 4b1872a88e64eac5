package service

import (
	"context"
	"fmt"

	"familypoints/internal/cache"
	"familypoints/internal/metrics"
	"familypoints/internal/models"

	log "github.com/sirupsen/logrus"
)

// NotificationInput describes one notification to store
type NotificationInput struct {
	UserID          string
	Title           string
	Message         string
	Type            models.NotificationType
	RelatedTaskID   *string
	RelatedRewardID *string
}

// DeliveryReport lists the outcome of a fan-out, one entry per recipient
type DeliveryReport struct {
	Delivered []string
	Failures  []*NotificationDeliveryError
}

// AllDelivered reports whether every recipient was notified
func (r DeliveryReport) AllDelivered() bool {
	return len(r.Failures) == 0
}

// NotificationService stores notifications and serves a user's inbox
type NotificationService struct {
	store  NotificationStore
	badges cache.BadgeCache
	mirror NotificationMirror
}

// NewNotificationService creates a notification service. mirror may be nil.
func NewNotificationService(store NotificationStore, badges cache.BadgeCache, mirror NotificationMirror) *NotificationService {
	if badges == nil {
		badges = cache.NopBadgeCache{}
	}
	return &NotificationService{store: store, badges: badges, mirror: mirror}
}

// Notify stores a single notification for one recipient
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	n := &models.Notification{
		UserID:          in.UserID,
		Title:           in.Title,
		Message:         in.Message,
		Type:            in.Type,
		RelatedTaskID:   in.RelatedTaskID,
		RelatedRewardID: in.RelatedRewardID,
	}
	if n.Type == "" {
		n.Type = models.NotificationGeneral
	}

	err := s.store.InsertNotification(ctx, n)
	metrics.RecordNotification(err)
	if err != nil {
		return nil, storeErr("create notification", err)
	}

	s.badges.InvalidateUnread(ctx, n.UserID)

	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, n); err != nil {
			log.WithFields(log.Fields{
				"notification_id": n.ID,
				"user_id":         n.UserID,
				"error":           err,
			}).Warn("Failed to mirror notification")
		}
	}

	return n, nil
}

// NotifyBestEffort stores a notification and logs instead of returning a failure.
// Lifecycle changes call it after their state is already committed.
func (s *NotificationService) NotifyBestEffort(ctx context.Context, in NotificationInput) {
	if _, err := s.Notify(ctx, in); err != nil {
		logDeliveryFailure(&NotificationDeliveryError{UserID: in.UserID, Type: in.Type, Err: err})
	}
}

// DeliverToMany notifies each recipient independently. A failure for one
// recipient is recorded in the report and does not stop the others.
func (s *NotificationService) DeliverToMany(ctx context.Context, recipients []string, build func(recipientID string) NotificationInput) DeliveryReport {
	var report DeliveryReport
	for _, recipient := range recipients {
		in := build(recipient)
		in.UserID = recipient
		if _, err := s.Notify(ctx, in); err != nil {
			failure := &NotificationDeliveryError{UserID: recipient, Type: in.Type, Err: err}
			logDeliveryFailure(failure)
			report.Failures = append(report.Failures, failure)
			continue
		}
		report.Delivered = append(report.Delivered, recipient)
	}
	return report
}

func logDeliveryFailure(failure *NotificationDeliveryError) {
	log.WithFields(log.Fields{
		"user_id": failure.UserID,
		"type":    string(failure.Type),
		"error":   failure.Err,
	}).Warn("Notification delivery failed")
}

// GetUserNotifications returns a user's notifications, newest first
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	notifications, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, storeErr("get notifications", err)
	}
	return notifications, nil
}

// GetUnreadCount returns the number of unread notifications for the badge
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	count, lease, ok := s.badges.UnreadCount(ctx, userID)
	if ok {
		return count, nil
	}

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, storeErr("count unread notifications", err)
	}
	s.badges.Fill(ctx, lease, count)
	return count, nil
}

// MarkAsRead marks one of the user's own notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	n, err := s.store.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return storeErr("mark notification read", err)
	}
	if n == 0 {
		return &NotFoundOrForbiddenError{Entity: "notification", Op: "marked as read"}
	}
	s.badges.InvalidateUnread(ctx, userID)
	return nil
}

// MarkAllRead marks every notification of the user as read and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, storeErr("mark notifications read", err)
	}
	s.badges.InvalidateUnread(ctx, userID)
	return n, nil
}

// Notification texts

func taskAssignedNotice(task *models.Task) NotificationInput {
	return NotificationInput{
		UserID:        task.AssignedTo,
		Title:         "New Task",
		Message:       "You have received a new task!",
		Type:          models.NotificationTaskAssigned,
		RelatedTaskID: &task.ID,
	}
}

func taskCompletedNotice(task *models.Task) NotificationInput {
	return NotificationInput{
		UserID:        task.CreatedBy,
		Title:         "Task Completed",
		Message:       "A task has been marked as completed!",
		Type:          models.NotificationTaskCompleted,
		RelatedTaskID: &task.ID,
	}
}

func taskApprovedNotice(task *models.Task) NotificationInput {
	return NotificationInput{
		UserID:        task.AssignedTo,
		Title:         "Task Approved",
		Message:       "Your task has been approved! You have received points.",
		Type:          models.NotificationTaskApproved,
		RelatedTaskID: &task.ID,
	}
}

// rewardClaimedNotice tells an admin about a claim; requiresApproval picks the wording
func rewardClaimedNotice(userName string, reward *models.Reward, requiresApproval bool) func(string) NotificationInput {
	title := "Reward Claimed"
	message := fmt.Sprintf(`%s has claimed "%s".`, userName, reward.Title)
	if requiresApproval {
		title = "Reward Pending Approval"
		message = fmt.Sprintf(`%s has claimed "%s" and is waiting for your approval.`, userName, reward.Title)
	}
	return func(adminID string) NotificationInput {
		return NotificationInput{
			UserID:          adminID,
			Title:           title,
			Message:         message,
			Type:            models.NotificationRewardClaimed,
			RelatedRewardID: &reward.ID,
		}
	}
}

func claimResolvedNotice(claim *models.RewardClaim, reward *models.Reward) NotificationInput {
	in := NotificationInput{
		UserID:          claim.UserID,
		Type:            models.NotificationRewardClaimed,
		RelatedRewardID: &reward.ID,
	}
	if claim.Status == models.ClaimApproved {
		in.Title = "Reward Approved!"
		in.Message = fmt.Sprintf(`Your claim for "%s" has been approved! Enjoy your reward!`, reward.Title)
	} else {
		in.Title = "Reward Claim Denied"
		in.Message = fmt.Sprintf(`Your claim for "%s" has been denied. Please contact an admin for more information.`, reward.Title)
	}
	return in
}
