package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"familypoints/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var insertClaimSQL = regexp.QuoteMeta("INSERT INTO reward_claims")

func TestClaimRepository_InsertClaimKeepsClaimTime(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewClaimRepository(db)
	at := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	mock.ExpectExec(insertClaimSQL).
		WithArgs(sqlmock.AnyArg(), "user-1", "reward-1", "approved", at, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claim := &models.RewardClaim{
		UserID:      "user-1",
		RewardID:    "reward-1",
		Status:      models.ClaimApproved,
		ClaimedAt:   at,
		ProcessedAt: &at,
	}
	require.NoError(t, repo.InsertClaim(context.Background(), claim))

	assert.Equal(t, at, claim.ClaimedAt)
	assert.NotEmpty(t, claim.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_InsertClaimStampsMissingClaimTime(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewClaimRepository(db)

	mock.ExpectExec(insertClaimSQL).
		WithArgs(sqlmock.AnyArg(), "user-1", "reward-1", "pending", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claim := &models.RewardClaim{UserID: "user-1", RewardID: "reward-1", Status: models.ClaimPending}
	require.NoError(t, repo.InsertClaim(context.Background(), claim))

	assert.False(t, claim.ClaimedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
