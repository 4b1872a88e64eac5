package models

import "time"

// Reward is something family members can spend points on
type Reward struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	PointsRequired   int       `json:"points_required"`
	FamilyID         string    `json:"family_id"`
	CreatedBy        string    `json:"created_by"`
	IsActive         bool      `json:"is_active"`
	RequiresApproval bool      `json:"requires_approval"`
	CreatedAt        time.Time `json:"created_at"`
}

// RewardClaim records a user's request for a reward
type RewardClaim struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	RewardID    string      `json:"reward_id"`
	Status      ClaimStatus `json:"status"`
	ClaimedAt   time.Time   `json:"claimed_at"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
}

// ClaimWithReward is a claim joined with its reward and the claimant's name
type ClaimWithReward struct {
	RewardClaim
	Reward   Reward `json:"reward"`
	UserName string `json:"user_name"`
}
