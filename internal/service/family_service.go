package service

import (
	"context"
	"errors"
	"strings"

	"familypoints/internal/models"
	"familypoints/internal/repository"
	"familypoints/internal/validation"

	log "github.com/sirupsen/logrus"
)

var (
	ErrFamilyNotFound  = errors.New("family not found")
	ErrAlreadyInFamily = errors.New("you already belong to a family")
)

// FamilyService handles family creation and membership
type FamilyService struct {
	families FamilyStore
	users    UserStore
}

// NewFamilyService creates a new family service
func NewFamilyService(families FamilyStore, users UserStore) *FamilyService {
	return &FamilyService{families: families, users: users}
}

// CreateFamily creates a family and makes its creator the admin
func (s *FamilyService) CreateFamily(ctx context.Context, name, adminID string) (*models.Family, error) {
	if err := validation.ValidateName("name", name); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, storeErr("load user", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.FamilyID != nil {
		return nil, ErrAlreadyInFamily
	}

	family, err := s.families.CreateFamily(ctx, strings.TrimSpace(name), adminID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("create family", err)
	}

	log.WithFields(log.Fields{"family_id": family.ID, "admin_id": adminID}).Info("Family created")
	return family, nil
}

// JoinFamily adds a user to the family whose invitation code is familyCode.
// New joiners are members; promotion to admin only happens on creation.
func (s *FamilyService) JoinFamily(ctx context.Context, familyCode, userID string) (*models.Family, error) {
	familyCode = strings.TrimSpace(familyCode)
	if err := validation.ValidateID("family_code", familyCode); err != nil {
		return nil, err
	}

	family, err := s.families.GetFamilyByID(ctx, familyCode)
	if err != nil {
		return nil, storeErr("load family", err)
	}
	if family == nil {
		return nil, ErrFamilyNotFound
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeErr("load user", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.FamilyID != nil {
		if *user.FamilyID == family.ID {
			return family, nil
		}
		return nil, ErrAlreadyInFamily
	}

	n, err := s.users.SetFamilyMembership(ctx, userID, family.ID, models.RoleMember)
	if err != nil {
		return nil, storeErr("join family", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	log.WithFields(log.Fields{"family_id": family.ID, "user_id": userID}).Info("User joined family")
	return family, nil
}

// GetFamily returns a family with its members
func (s *FamilyService) GetFamily(ctx context.Context, familyID string) (*models.FamilyWithMembers, error) {
	family, err := s.families.GetFamilyByID(ctx, familyID)
	if err != nil {
		return nil, storeErr("get family", err)
	}
	if family == nil {
		return nil, ErrFamilyNotFound
	}

	members, err := s.GetFamilyMembers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return &models.FamilyWithMembers{Family: *family, Members: members}, nil
}

// GetFamilyMembers returns a family's members, admins first
func (s *FamilyService) GetFamilyMembers(ctx context.Context, familyID string) ([]models.User, error) {
	members, err := s.users.GetFamilyMembers(ctx, familyID)
	if err != nil {
		return nil, storeErr("get family members", err)
	}
	return members, nil
}
