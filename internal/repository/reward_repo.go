package repository

import (
	"context"
	"database/sql"
	"fmt"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// RewardRepository handles database operations for rewards
type RewardRepository struct {
	db *database.DB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *database.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

const rewardColumns = "id, title, description, points_required, family_id, created_by, is_active, requires_approval, created_at"

// InsertReward stores a new active reward
func (r *RewardRepository) InsertReward(ctx context.Context, reward *models.Reward) error {
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	reward.IsActive = true
	reward.CreatedAt = now()

	query := `
		INSERT INTO rewards (id, title, description, points_required, family_id, created_by, is_active, requires_approval, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		reward.ID, reward.Title, nullString(&reward.Description), reward.PointsRequired, reward.FamilyID,
		reward.CreatedBy, reward.IsActive, reward.RequiresApproval, reward.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reward: %w", err)
	}
	return nil
}

// GetRewardByID retrieves a reward by ID, active or not
func (r *RewardRepository) GetRewardByID(ctx context.Context, id string) (*models.Reward, error) {
	query := "SELECT " + rewardColumns + " FROM rewards WHERE id = ?"
	reward, err := scanReward(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return reward, nil
}

// ListActiveRewards returns a family's active rewards, cheapest first
func (r *RewardRepository) ListActiveRewards(ctx context.Context, familyID string) ([]models.Reward, error) {
	query := "SELECT " + rewardColumns + " FROM rewards WHERE family_id = ? AND is_active = ? ORDER BY points_required ASC"
	rows, err := r.db.QueryContext(ctx, query, familyID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []models.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, *reward)
	}
	return rewards, rows.Err()
}

// UpdateReward writes the editable fields of an active reward within its family
func (r *RewardRepository) UpdateReward(ctx context.Context, reward *models.Reward) (int64, error) {
	query := `
		UPDATE rewards
		SET title = ?, description = ?, points_required = ?, requires_approval = ?
		WHERE id = ? AND family_id = ? AND is_active = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		reward.Title, nullString(&reward.Description), reward.PointsRequired, reward.RequiresApproval,
		reward.ID, reward.FamilyID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to update reward: %w", err)
	}
	return result.RowsAffected()
}

// DeactivateReward soft-deletes an active reward of familyID
func (r *RewardRepository) DeactivateReward(ctx context.Context, id, familyID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE rewards SET is_active = ? WHERE id = ? AND family_id = ? AND is_active = ?",
		false, id, familyID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate reward: %w", err)
	}
	return result.RowsAffected()
}

func scanReward(row rowScanner) (*models.Reward, error) {
	var (
		reward      models.Reward
		description sql.NullString
	)
	err := row.Scan(
		&reward.ID,
		&reward.Title,
		&description,
		&reward.PointsRequired,
		&reward.FamilyID,
		&reward.CreatedBy,
		&reward.IsActive,
		&reward.RequiresApproval,
		&reward.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	reward.Description = description.String
	return &reward, nil
}
