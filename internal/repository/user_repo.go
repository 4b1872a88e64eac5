package repository

import (
	"context"
	"database/sql"
	"fmt"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, full_name, avatar_url, family_id, role, points, created_at"

// CreateUser inserts a new member account with an empty balance
func (r *UserRepository) CreateUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         models.RoleMember,
		Points:       0,
		CreatedAt:    now(),
	}

	query := `
		INSERT INTO users (id, email, password_hash, full_name, role, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.FullName,
		string(user.Role), user.Points, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = ?"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetFamilyMembers lists a family's members, admins first
func (r *UserRepository) GetFamilyMembers(ctx context.Context, familyID string) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE family_id = ?
		ORDER BY CASE WHEN role = 'admin' THEN 0 ELSE 1 END, full_name
	`
	return r.queryUsers(ctx, query, familyID)
}

// GetFamilyAdmins lists the admins of a family
func (r *UserRepository) GetFamilyAdmins(ctx context.Context, familyID string) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE family_id = ? AND role = ? ORDER BY full_name"
	return r.queryUsers(ctx, query, familyID, string(models.RoleAdmin))
}

// SetFamilyMembership moves a user into a family with the given role
func (r *UserRepository) SetFamilyMembership(ctx context.Context, userID, familyID string, role models.Role) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE users SET family_id = ?, role = ? WHERE id = ?",
		familyID, string(role), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to set family membership: %w", err)
	}
	return result.RowsAffected()
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		avatarURL sql.NullString
		familyID  sql.NullString
		role      sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&avatarURL,
		&familyID,
		&role,
		&user.Points,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.AvatarURL = stringPtr(avatarURL)
	user.FamilyID = stringPtr(familyID)
	if user.Role, err = models.ParseRole(role.String); err != nil {
		return nil, err
	}
	return &user, nil
}
