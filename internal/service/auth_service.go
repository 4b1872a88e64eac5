package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"familypoints/internal/models"
	"familypoints/internal/security"
	"familypoints/internal/validation"

	log "github.com/sirupsen/logrus"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AuthService handles sign-up, sign-in and bearer token lookup
type AuthService struct {
	users  UserStore
	tokens *security.TokenManager
	email  *EmailService
}

// NewAuthService creates a new auth service. email may be nil.
func NewAuthService(users UserStore, tokens *security.TokenManager, email *EmailService) *AuthService {
	return &AuthService{users: users, tokens: tokens, email: email}
}

// SignUp creates a member account with no family and zero points
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName("full_name", fullName); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, passwordHash, strings.TrimSpace(fullName))
	if err != nil {
		return nil, storeErr("create user", err)
	}

	log.WithField("user_id", user.ID).Info("User signed up")

	if s.email != nil && s.email.IsEnabled() {
		if err := s.email.SendWelcomeEmail(ctx, user.Email, user.FullName); err != nil {
			log.WithFields(log.Fields{"user_id": user.ID, "error": err}).Warn("Failed to send welcome email")
		}
	}

	return user, nil
}

// SignIn checks the credentials and issues a bearer token
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// CurrentUser resolves a bearer token to its user
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, security.ErrInvalidToken
	}
	return user, nil
}
