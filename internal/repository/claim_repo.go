package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// ClaimRepository handles database operations for reward claims
type ClaimRepository struct {
	db *database.DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *database.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = "id, user_id, reward_id, status, claimed_at, processed_at"

// InsertClaim stores a new claim in the status already set on it
func (r *ClaimRepository) InsertClaim(ctx context.Context, claim *models.RewardClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = now()
	}

	query := `
		INSERT INTO reward_claims (id, user_id, reward_id, status, claimed_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		claim.ID, claim.UserID, claim.RewardID, string(claim.Status), claim.ClaimedAt, nullTime(claim.ProcessedAt))
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// GetClaimByID retrieves a claim by ID
func (r *ClaimRepository) GetClaimByID(ctx context.Context, id string) (*models.RewardClaim, error) {
	query := "SELECT " + claimColumns + " FROM reward_claims WHERE id = ?"
	claim, err := scanClaim(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// DeleteClaim removes a claim. Returns the number of rows deleted.
func (r *ClaimRepository) DeleteClaim(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM reward_claims WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete claim: %w", err)
	}
	return result.RowsAffected()
}

// UpdateClaimStatus moves a claim from one status to another only if it is still in from.
// Returns false when the claim was not in from.
func (r *ClaimRepository) UpdateClaimStatus(ctx context.Context, id string, from, to models.ClaimStatus, processedAt *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE reward_claims SET status = ?, processed_at = ? WHERE id = ? AND status = ?",
		string(to), nullTime(processedAt), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update claim status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update claim status: %w", err)
	}
	return n == 1, nil
}

const claimWithRewardQuery = `
	SELECT c.id, c.user_id, c.reward_id, c.status, c.claimed_at, c.processed_at,
		r.id, r.title, r.description, r.points_required, r.family_id, r.created_by, r.is_active, r.requires_approval, r.created_at,
		u.full_name
	FROM reward_claims c
	INNER JOIN rewards r ON r.id = c.reward_id
	INNER JOIN users u ON u.id = c.user_id
`

// ListClaimsByUser returns a user's claims with their rewards, newest first
func (r *ClaimRepository) ListClaimsByUser(ctx context.Context, userID string) ([]models.ClaimWithReward, error) {
	return r.queryClaims(ctx, claimWithRewardQuery+" WHERE c.user_id = ? ORDER BY c.claimed_at DESC", userID)
}

// ListClaimsByFamily returns the claims on a family's rewards, newest first.
// An empty status lists every claim.
func (r *ClaimRepository) ListClaimsByFamily(ctx context.Context, familyID string, status models.ClaimStatus) ([]models.ClaimWithReward, error) {
	if status == "" {
		return r.queryClaims(ctx, claimWithRewardQuery+" WHERE r.family_id = ? ORDER BY c.claimed_at DESC", familyID)
	}
	return r.queryClaims(ctx, claimWithRewardQuery+" WHERE r.family_id = ? AND c.status = ? ORDER BY c.claimed_at DESC",
		familyID, string(status))
}

func (r *ClaimRepository) queryClaims(ctx context.Context, query string, args ...interface{}) ([]models.ClaimWithReward, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []models.ClaimWithReward
	for rows.Next() {
		var (
			item        models.ClaimWithReward
			status      string
			processedAt sql.NullTime
			description sql.NullString
		)
		err := rows.Scan(
			&item.ID, &item.UserID, &item.RewardID, &status, &item.ClaimedAt, &processedAt,
			&item.Reward.ID, &item.Reward.Title, &description, &item.Reward.PointsRequired, &item.Reward.FamilyID,
			&item.Reward.CreatedBy, &item.Reward.IsActive, &item.Reward.RequiresApproval, &item.Reward.CreatedAt,
			&item.UserName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		if item.Status, err = models.ParseClaimStatus(status); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		item.ProcessedAt = timePtr(processedAt)
		item.Reward.Description = description.String
		claims = append(claims, item)
	}
	return claims, rows.Err()
}

func scanClaim(row rowScanner) (*models.RewardClaim, error) {
	var (
		claim       models.RewardClaim
		status      string
		processedAt sql.NullTime
	)
	if err := row.Scan(&claim.ID, &claim.UserID, &claim.RewardID, &status, &claim.ClaimedAt, &processedAt); err != nil {
		return nil, err
	}

	var err error
	if claim.Status, err = models.ParseClaimStatus(status); err != nil {
		return nil, err
	}
	claim.ProcessedAt = timePtr(processedAt)
	return &claim, nil
}
