package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"familypoints/internal/models"

	log "github.com/sirupsen/logrus"
)

// FamilySnapshot is the export format of one family
type FamilySnapshot struct {
	Version      string                    `json:"version"`
	ExportedAt   time.Time                 `json:"exported_at"`
	Family       models.Family             `json:"family"`
	Members      []models.User             `json:"members"`
	Tasks        []models.Task             `json:"tasks"`
	Rewards      []models.Reward           `json:"rewards"`
	Claims       []models.ClaimWithReward  `json:"claims"`
	Transactions []models.PointTransaction `json:"transactions"`
}

// AuditService checks balances against the point journal and exports families
type AuditService struct {
	families FamilyStore
	users    UserStore
	tasks    TaskStore
	rewards  RewardStore
	claims   ClaimStore
	points   PointsLedger
	now      func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(families FamilyStore, users UserStore, tasks TaskStore, rewards RewardStore, claims ClaimStore, points PointsLedger) *AuditService {
	return &AuditService{
		families: families,
		users:    users,
		tasks:    tasks,
		rewards:  rewards,
		claims:   claims,
		points:   points,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile returns every user whose balance differs from the sum of their journal
func (s *AuditService) Reconcile(ctx context.Context) ([]models.BalanceCheck, error) {
	checks, err := s.points.ListBalanceChecks(ctx)
	if err != nil {
		return nil, storeErr("list balances", err)
	}

	var mismatches []models.BalanceCheck
	for _, check := range checks {
		if check.Consistent() {
			continue
		}
		log.WithFields(log.Fields{
			"user_id":       check.UserID,
			"balance":       check.Balance,
			"journal_total": check.JournalTotal,
		}).Error("Balance does not match point journal")
		mismatches = append(mismatches, check)
	}

	log.WithFields(log.Fields{"users": len(checks), "mismatches": len(mismatches)}).Info("Reconciliation finished")
	return mismatches, nil
}

// ExportFamily writes a JSON snapshot of one family to w
func (s *AuditService) ExportFamily(ctx context.Context, familyID string, w io.Writer) error {
	family, err := s.families.GetFamilyByID(ctx, familyID)
	if err != nil {
		return storeErr("load family", err)
	}
	if family == nil {
		return ErrFamilyNotFound
	}

	snapshot := &FamilySnapshot{
		Version:    "1.0",
		ExportedAt: s.now(),
		Family:     *family,
	}

	if snapshot.Members, err = s.users.GetFamilyMembers(ctx, familyID); err != nil {
		return fmt.Errorf("failed to export members: %w", err)
	}
	if snapshot.Tasks, err = s.tasks.ListTasks(ctx, models.TaskFilter{FamilyID: familyID}); err != nil {
		return fmt.Errorf("failed to export tasks: %w", err)
	}
	if snapshot.Rewards, err = s.rewards.ListActiveRewards(ctx, familyID); err != nil {
		return fmt.Errorf("failed to export rewards: %w", err)
	}
	if snapshot.Claims, err = s.claims.ListClaimsByFamily(ctx, familyID, ""); err != nil {
		return fmt.Errorf("failed to export claims: %w", err)
	}
	for _, member := range snapshot.Members {
		txs, err := s.points.ListTransactions(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("failed to export transactions of %s: %w", member.ID, err)
		}
		snapshot.Transactions = append(snapshot.Transactions, txs...)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	log.WithFields(log.Fields{
		"family_id":    familyID,
		"members":      len(snapshot.Members),
		"tasks":        len(snapshot.Tasks),
		"rewards":      len(snapshot.Rewards),
		"claims":       len(snapshot.Claims),
		"transactions": len(snapshot.Transactions),
	}).Info("Family exported")
	return nil
}
