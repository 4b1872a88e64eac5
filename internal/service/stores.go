package service

import (
	"context"
	"time"

	"familypoints/internal/models"
	"familypoints/internal/repository"
)

// The lifecycle managers depend on these narrow store views instead of concrete
// repositories so tests can substitute in-memory stores.

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetFamilyMembers(ctx context.Context, familyID string) ([]models.User, error)
	GetFamilyAdmins(ctx context.Context, familyID string) ([]models.User, error)
	SetFamilyMembership(ctx context.Context, userID, familyID string, role models.Role) (int64, error)
}

type FamilyStore interface {
	CreateFamily(ctx context.Context, name, adminID string) (*models.Family, error)
	GetFamilyByID(ctx context.Context, familyID string) (*models.Family, error)
}

type TaskStore interface {
	InsertTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, from, to models.TaskStatus, at time.Time) (bool, error)
	DeleteTask(ctx context.Context, id, familyID string) (int64, error)
	CountTasksByStatus(ctx context.Context, familyID string, status models.TaskStatus) (int, error)
}

type RewardStore interface {
	InsertReward(ctx context.Context, reward *models.Reward) error
	GetRewardByID(ctx context.Context, id string) (*models.Reward, error)
	ListActiveRewards(ctx context.Context, familyID string) ([]models.Reward, error)
	UpdateReward(ctx context.Context, reward *models.Reward) (int64, error)
	DeactivateReward(ctx context.Context, id, familyID string) (int64, error)
}

type ClaimStore interface {
	InsertClaim(ctx context.Context, claim *models.RewardClaim) error
	GetClaimByID(ctx context.Context, id string) (*models.RewardClaim, error)
	DeleteClaim(ctx context.Context, id string) (int64, error)
	UpdateClaimStatus(ctx context.Context, id string, from, to models.ClaimStatus, processedAt *time.Time) (bool, error)
	ListClaimsByUser(ctx context.Context, userID string) ([]models.ClaimWithReward, error)
	ListClaimsByFamily(ctx context.Context, familyID string, status models.ClaimStatus) ([]models.ClaimWithReward, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// PointsLedger performs the two atomic balance operations and reads their journal
type PointsLedger interface {
	AddUserPoints(ctx context.Context, userID string, amount int, reason models.PointReason, ref repository.PointRef) (int, error)
	DeductUserPoints(ctx context.Context, userID string, amount int, reason models.PointReason, ref repository.PointRef) (int, error)
	ListTransactions(ctx context.Context, userID string) ([]models.PointTransaction, error)
	ListBalanceChecks(ctx context.Context) ([]models.BalanceCheck, error)
}

var (
	_ UserStore         = (*repository.UserRepository)(nil)
	_ FamilyStore       = (*repository.FamilyRepository)(nil)
	_ TaskStore         = (*repository.TaskRepository)(nil)
	_ RewardStore       = (*repository.RewardRepository)(nil)
	_ ClaimStore        = (*repository.ClaimRepository)(nil)
	_ NotificationStore = (*repository.NotificationRepository)(nil)
	_ PointsLedger      = (*repository.PointsRepository)(nil)
)
