package repository

import (
	"context"
	"database/sql"
	"fmt"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// PointRef links a balance change to the task or claim that caused it
type PointRef struct {
	TaskID  *string
	ClaimID *string
}

// PointsRepository performs atomic balance changes and keeps their journal
type PointsRepository struct {
	db *database.DB
}

// NewPointsRepository creates a new points repository
func NewPointsRepository(db *database.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// AddUserPoints credits a positive amount to a user's balance
func (r *PointsRepository) AddUserPoints(ctx context.Context, userID string, amount int, reason models.PointReason, ref PointRef) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return r.AdjustPoints(ctx, userID, amount, reason, ref)
}

// DeductUserPoints debits a positive amount from a user's balance.
// Fails with ErrInsufficientPoints rather than going negative.
func (r *PointsRepository) DeductUserPoints(ctx context.Context, userID string, amount int, reason models.PointReason, ref PointRef) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return r.AdjustPoints(ctx, userID, -amount, reason, ref)
}

// AdjustPoints applies delta with a single guarded UPDATE and journals it in the same
// transaction. Returns the new balance.
func (r *PointsRepository) AdjustPoints(ctx context.Context, userID string, delta int, reason models.PointReason, ref PointRef) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE users SET points = points + ? WHERE id = ? AND points + ? >= 0",
		delta, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check user: %w", err)
		}
		if exists == 0 {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientPoints
	}

	query := `
		INSERT INTO point_transactions (id, user_id, delta, reason, task_id, claim_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, uuid.NewString(), userID, delta, string(reason),
		nullString(ref.TaskID), nullString(ref.ClaimID), now())
	if err != nil {
		return 0, fmt.Errorf("failed to record point transaction: %w", err)
	}

	var balance int
	if err := tx.QueryRowContext(ctx, "SELECT points FROM users WHERE id = ?", userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a user's journal, newest first
func (r *PointsRepository) ListTransactions(ctx context.Context, userID string) ([]models.PointTransaction, error) {
	query := `
		SELECT id, user_id, delta, reason, task_id, claim_id, created_at
		FROM point_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query point transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.PointTransaction
	for rows.Next() {
		var (
			txn     models.PointTransaction
			reason  string
			taskID  sql.NullString
			claimID sql.NullString
		)
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Delta, &reason, &taskID, &claimID, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan point transaction: %w", err)
		}
		if txn.Reason, err = models.ParsePointReason(reason); err != nil {
			return nil, fmt.Errorf("failed to scan point transaction: %w", err)
		}
		txn.TaskID = stringPtr(taskID)
		txn.ClaimID = stringPtr(claimID)
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// ListBalanceChecks compares every user's balance with the sum of their journal
func (r *PointsRepository) ListBalanceChecks(ctx context.Context) ([]models.BalanceCheck, error) {
	query := `
		SELECT u.id, u.email, u.points, COALESCE(SUM(pt.delta), 0)
		FROM users u
		LEFT JOIN point_transactions pt ON pt.user_id = u.id
		GROUP BY u.id, u.email, u.points
		ORDER BY u.email
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var checks []models.BalanceCheck
	for rows.Next() {
		var check models.BalanceCheck
		if err := rows.Scan(&check.UserID, &check.Email, &check.Balance, &check.JournalTotal); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}
