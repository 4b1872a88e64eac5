package repository

import (
	"context"
	"database/sql"
	"fmt"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// FamilyRepository handles database operations for families
type FamilyRepository struct {
	db *database.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateFamily creates a family and promotes its creator to admin in one transaction
func (r *FamilyRepository) CreateFamily(ctx context.Context, name, adminID string) (*models.Family, error) {
	family := &models.Family{
		ID:        uuid.NewString(),
		Name:      name,
		AdminID:   adminID,
		CreatedAt: now(),
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO families (id, name, admin_id, created_at) VALUES (?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, query, family.ID, family.Name, family.AdminID, family.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	result, err := tx.ExecContext(ctx, "UPDATE users SET family_id = ?, role = ? WHERE id = ?",
		family.ID, string(models.RoleAdmin), adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to promote family admin: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to promote family admin: %w", err)
	} else if n == 0 {
		return nil, ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return family, nil
}

// GetFamilyByID retrieves a family by ID
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, familyID string) (*models.Family, error) {
	query := "SELECT id, name, admin_id, created_at FROM families WHERE id = ?"
	family := &models.Family{}
	err := r.db.QueryRowContext(ctx, query, familyID).Scan(
		&family.ID,
		&family.Name,
		&family.AdminID,
		&family.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	return family, nil
}
