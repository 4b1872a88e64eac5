package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"familypoints/internal/metrics"
	"familypoints/internal/models"
	"familypoints/internal/repository"
	"familypoints/internal/validation"

	log "github.com/sirupsen/logrus"
)

// CreateRewardInput holds the fields an admin supplies for a new reward
type CreateRewardInput struct {
	Title            string
	Description      string
	PointsRequired   int
	RequiresApproval bool
	FamilyID         string
	CreatedBy        string
}

// RewardUpdate carries the reward fields to change. Nil fields are left as they are.
type RewardUpdate struct {
	Title            *string
	Description      *string
	PointsRequired   *int
	RequiresApproval *bool
}

// RewardService manages rewards and runs the claim lifecycle
type RewardService struct {
	rewards  RewardStore
	claims   ClaimStore
	users    UserStore
	points   PointsLedger
	notifier *NotificationService
	gate     *Gate
	now      func() time.Time
}

// NewRewardService creates a new reward service
func NewRewardService(rewards RewardStore, claims ClaimStore, users UserStore, points PointsLedger, notifier *NotificationService, gate *Gate) *RewardService {
	return &RewardService{
		rewards:  rewards,
		claims:   claims,
		users:    users,
		points:   points,
		notifier: notifier,
		gate:     gate,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateReward adds an active reward to a family
func (s *RewardService) CreateReward(ctx context.Context, in CreateRewardInput, actingRole models.Role) (*models.Reward, error) {
	if err := s.gate.AssertRole(actingRole, models.RoleAdmin, "create rewards"); err != nil {
		return nil, err
	}
	if err := validation.ValidateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validation.ValidatePoints("points_required", in.PointsRequired); err != nil {
		return nil, err
	}

	reward := &models.Reward{
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		PointsRequired:   in.PointsRequired,
		RequiresApproval: in.RequiresApproval,
		FamilyID:         in.FamilyID,
		CreatedBy:        in.CreatedBy,
	}
	if err := s.rewards.InsertReward(ctx, reward); err != nil {
		return nil, storeErr("create reward", err)
	}

	log.WithFields(log.Fields{"reward_id": reward.ID, "family_id": reward.FamilyID}).Info("Reward created")
	return reward, nil
}

// UpdateReward changes an active reward of familyID
func (s *RewardService) UpdateReward(ctx context.Context, rewardID, familyID string, update RewardUpdate, actingRole models.Role) (*models.Reward, error) {
	if err := s.gate.AssertRole(actingRole, models.RoleAdmin, "update rewards"); err != nil {
		return nil, err
	}

	reward, err := s.rewards.GetRewardByID(ctx, rewardID)
	if err != nil {
		return nil, storeErr("load reward", err)
	}
	if reward == nil || reward.FamilyID != familyID || !reward.IsActive {
		return nil, &NotFoundOrForbiddenError{Entity: "reward", Op: "updated"}
	}

	if update.Title != nil {
		if err := validation.ValidateTitle(*update.Title); err != nil {
			return nil, err
		}
		reward.Title = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		reward.Description = strings.TrimSpace(*update.Description)
	}
	if update.PointsRequired != nil {
		if err := validation.ValidatePoints("points_required", *update.PointsRequired); err != nil {
			return nil, err
		}
		reward.PointsRequired = *update.PointsRequired
	}
	if update.RequiresApproval != nil {
		reward.RequiresApproval = *update.RequiresApproval
	}

	n, err := s.rewards.UpdateReward(ctx, reward)
	if err != nil {
		return nil, storeErr("update reward", err)
	}
	if n == 0 {
		return nil, &NotFoundOrForbiddenError{Entity: "reward", Op: "updated"}
	}
	return reward, nil
}

// DeleteReward deactivates a reward. Existing claims keep referring to it.
func (s *RewardService) DeleteReward(ctx context.Context, rewardID string, capability *DeleteCapability) error {
	if err := requireCapability(capability, "delete rewards"); err != nil {
		return err
	}

	n, err := s.rewards.DeactivateReward(ctx, rewardID, capability.FamilyID())
	if err != nil {
		return storeErr("delete reward", err)
	}
	if n == 0 {
		return &NotFoundOrForbiddenError{Entity: "reward", Op: "deleted"}
	}

	log.WithFields(log.Fields{"reward_id": rewardID, "deleted_by": capability.ActorID()}).Info("Reward deactivated")
	return nil
}

// GetFamilyRewards returns a family's active rewards, cheapest first
func (s *RewardService) GetFamilyRewards(ctx context.Context, familyID string) ([]models.Reward, error) {
	rewards, err := s.rewards.ListActiveRewards(ctx, familyID)
	if err != nil {
		return nil, storeErr("get family rewards", err)
	}
	return rewards, nil
}

// Claim claims a reward for userID using the policy the reward is configured with
func (s *RewardService) Claim(ctx context.Context, rewardID, userID string) (*models.RewardClaim, error) {
	reward, err := s.rewards.GetRewardByID(ctx, rewardID)
	if err != nil {
		return nil, storeErr("load reward", err)
	}
	if reward == nil {
		return nil, &NotFoundOrForbiddenError{Entity: "reward", Op: "claimed"}
	}
	if reward.RequiresApproval {
		return s.CreatePendingClaim(ctx, rewardID, userID)
	}
	return s.ClaimReward(ctx, rewardID, userID, reward.PointsRequired)
}

// loadClaimable returns the claimant and the reward once both are known to
// belong to the same family and the reward can still be claimed
func (s *RewardService) loadClaimable(ctx context.Context, rewardID, userID string) (*models.User, *models.Reward, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, storeErr("load user", err)
	}
	reward, err := s.rewards.GetRewardByID(ctx, rewardID)
	if err != nil {
		return nil, nil, storeErr("load reward", err)
	}
	if user == nil || reward == nil || !user.BelongsTo(reward.FamilyID) {
		return nil, nil, &NotFoundOrForbiddenError{Entity: "reward", Op: "claimed"}
	}
	if !reward.IsActive {
		return nil, nil, ErrRewardInactive
	}
	return user, reward, nil
}

// ClaimReward claims a reward that needs no approval. The claim row and the
// deduction either both happen or neither does. pointsRequired is the price the
// claimant saw; a different current price fails with ErrPriceChanged.
func (s *RewardService) ClaimReward(ctx context.Context, rewardID, userID string, pointsRequired int) (*models.RewardClaim, error) {
	user, reward, err := s.loadClaimable(ctx, rewardID, userID)
	if err != nil {
		return nil, err
	}
	if reward.RequiresApproval {
		return nil, ErrApprovalRequired
	}
	if pointsRequired != reward.PointsRequired {
		return nil, ErrPriceChanged
	}

	at := s.now()
	claim := &models.RewardClaim{
		UserID:      user.ID,
		RewardID:    reward.ID,
		Status:      models.ClaimApproved,
		ClaimedAt:   at,
		ProcessedAt: &at,
	}

	purchase := newSaga("reward_claim",
		sagaStep{
			name: "record claim",
			run: func(ctx context.Context) error {
				return s.claims.InsertClaim(ctx, claim)
			},
			compensate: func(ctx context.Context) error {
				_, err := s.claims.DeleteClaim(ctx, claim.ID)
				return err
			},
		},
		sagaStep{
			name: "deduct points",
			run: func(ctx context.Context) error {
				_, err := s.points.DeductUserPoints(ctx, user.ID, reward.PointsRequired, models.ReasonRewardClaimed,
					repository.PointRef{ClaimID: &claim.ID})
				metrics.RecordPointAdjustment("debit", err)
				return err
			},
		},
	)
	if err := purchase.run(ctx); err != nil {
		return nil, sagaFailure("claim reward", err)
	}

	metrics.RecordTransition("claim", string(models.ClaimApproved))
	log.WithFields(log.Fields{"claim_id": claim.ID, "reward_id": reward.ID, "user_id": user.ID}).Info("Reward claimed")

	s.notifyAdmins(ctx, user, reward, false)
	return claim, nil
}

// CreatePendingClaim records a claim for an admin to resolve. No points move yet.
// Rewards without approval go through ClaimReward instead.
func (s *RewardService) CreatePendingClaim(ctx context.Context, rewardID, userID string) (*models.RewardClaim, error) {
	user, reward, err := s.loadClaimable(ctx, rewardID, userID)
	if err != nil {
		return nil, err
	}
	if !reward.RequiresApproval {
		return nil, ErrApprovalNotRequired
	}

	claim := &models.RewardClaim{
		UserID:    user.ID,
		RewardID:  reward.ID,
		Status:    models.ClaimPending,
		ClaimedAt: s.now(),
	}
	if err := s.claims.InsertClaim(ctx, claim); err != nil {
		return nil, storeErr("create claim", err)
	}

	metrics.RecordTransition("claim", string(models.ClaimPending))
	log.WithFields(log.Fields{"claim_id": claim.ID, "reward_id": reward.ID, "user_id": user.ID}).Info("Reward claim awaiting approval")

	s.notifyAdmins(ctx, user, reward, true)
	return claim, nil
}

func (s *RewardService) notifyAdmins(ctx context.Context, claimant *models.User, reward *models.Reward, requiresApproval bool) {
	admins, err := s.users.GetFamilyAdmins(ctx, reward.FamilyID)
	if err != nil {
		log.WithFields(log.Fields{"family_id": reward.FamilyID, "error": err}).Warn("Failed to load family admins for notification")
		return
	}

	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		recipients = append(recipients, admin.ID)
	}
	s.notifier.DeliverToMany(ctx, recipients, rewardClaimedNotice(claimant.FullName, reward, requiresApproval))
}

// ResolveClaim approves or denies a pending claim. Repeating the decision a
// claim already has returns it unchanged; reversing a decision is refused.
func (s *RewardService) ResolveClaim(ctx context.Context, claimID string, decision models.ClaimDecision, actor *models.User) (*models.RewardClaim, error) {
	role := models.RoleUnknown
	if actor != nil {
		role = actor.Role
	}
	if err := s.gate.AssertRole(role, models.RoleAdmin, "resolve reward claims"); err != nil {
		return nil, err
	}

	claim, err := s.claims.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, storeErr("load claim", err)
	}
	if claim == nil {
		return nil, &NotFoundOrForbiddenError{Entity: "claim", Op: "resolved"}
	}
	reward, err := s.rewards.GetRewardByID(ctx, claim.RewardID)
	if err != nil {
		return nil, storeErr("load reward", err)
	}
	if reward == nil || actor == nil || !actor.BelongsTo(reward.FamilyID) {
		return nil, &NotFoundOrForbiddenError{Entity: "claim", Op: "resolved"}
	}

	target := decision.TargetStatus()
	if claim.Status == target {
		return claim, nil
	}
	if claim.Status.IsResolved() {
		return nil, &InvalidTransitionError{Entity: "claim", From: string(claim.Status), To: string(target)}
	}

	at := s.now()
	if decision == models.DecisionApprove {
		err = s.approveClaim(ctx, claim, reward, at)
	} else {
		err = s.denyClaim(ctx, claim, at)
	}
	if errors.Is(err, errLostRace) {
		return s.settleLostClaimRace(ctx, claim.ID, target)
	}
	if err != nil {
		return nil, err
	}

	claim.Status = target
	claim.ProcessedAt = &at
	metrics.RecordTransition("claim", string(target))
	log.WithFields(log.Fields{"claim_id": claim.ID, "status": string(target), "resolved_by": actor.ID}).Info("Reward claim resolved")

	s.notifier.NotifyBestEffort(ctx, claimResolvedNotice(claim, reward))
	return claim, nil
}

func (s *RewardService) approveClaim(ctx context.Context, claim *models.RewardClaim, reward *models.Reward, at time.Time) error {
	resolution := newSaga("claim_resolution",
		sagaStep{
			name: "mark approved",
			run: func(ctx context.Context) error {
				ok, err := s.claims.UpdateClaimStatus(ctx, claim.ID, models.ClaimPending, models.ClaimApproved, &at)
				if err != nil {
					return err
				}
				if !ok {
					return errLostRace
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				ok, err := s.claims.UpdateClaimStatus(ctx, claim.ID, models.ClaimApproved, models.ClaimPending, nil)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("claim %s left approved state before it could be reverted", claim.ID)
				}
				return nil
			},
		},
		sagaStep{
			name: "deduct points",
			run: func(ctx context.Context) error {
				_, err := s.points.DeductUserPoints(ctx, claim.UserID, reward.PointsRequired, models.ReasonClaimApproved,
					repository.PointRef{ClaimID: &claim.ID})
				metrics.RecordPointAdjustment("debit", err)
				return err
			},
		},
	)
	if err := resolution.run(ctx); err != nil {
		if errors.Is(err, errLostRace) {
			return err
		}
		return sagaFailure("approve claim", err)
	}
	return nil
}

func (s *RewardService) denyClaim(ctx context.Context, claim *models.RewardClaim, at time.Time) error {
	ok, err := s.claims.UpdateClaimStatus(ctx, claim.ID, models.ClaimPending, models.ClaimDenied, &at)
	if err != nil {
		return storeErr("deny claim", err)
	}
	if !ok {
		return errLostRace
	}
	return nil
}

func (s *RewardService) settleLostClaimRace(ctx context.Context, claimID string, target models.ClaimStatus) (*models.RewardClaim, error) {
	current, err := s.claims.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, storeErr("reload claim", err)
	}
	if current == nil {
		return nil, &NotFoundOrForbiddenError{Entity: "claim", Op: "resolved"}
	}
	if current.Status == target {
		return current, nil
	}
	return nil, &InvalidTransitionError{Entity: "claim", From: string(current.Status), To: string(target)}
}

// GetUserClaimedRewards returns a user's claims with their rewards, newest first
func (s *RewardService) GetUserClaimedRewards(ctx context.Context, userID string) ([]models.ClaimWithReward, error) {
	claims, err := s.claims.ListClaimsByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("get user claims", err)
	}
	return claims, nil
}

// GetFamilyRewardClaims returns every claim made in a family, newest first
func (s *RewardService) GetFamilyRewardClaims(ctx context.Context, familyID string) ([]models.ClaimWithReward, error) {
	claims, err := s.claims.ListClaimsByFamily(ctx, familyID, "")
	if err != nil {
		return nil, storeErr("get family claims", err)
	}
	return claims, nil
}

// GetPendingClaims returns a family's claims awaiting a decision
func (s *RewardService) GetPendingClaims(ctx context.Context, familyID string) ([]models.ClaimWithReward, error) {
	claims, err := s.claims.ListClaimsByFamily(ctx, familyID, models.ClaimPending)
	if err != nil {
		return nil, storeErr("get pending claims", err)
	}
	return claims, nil
}

// sagaFailure keeps a *CompensationError as is and wraps anything else as a store failure
func sagaFailure(op string, err error) error {
	var compErr *CompensationError
	if errors.As(err, &compErr) {
		return compErr
	}
	return storeErr(op, err)
}
