package handlers

import (
	"net/http"

	"familypoints/internal/models"
	"familypoints/internal/service"
	"familypoints/internal/validation"
)

// RewardHandler handles reward and claim requests
type RewardHandler struct {
	rewardService *service.RewardService
	gate          *service.Gate
}

// NewRewardHandler creates a new reward handler
func NewRewardHandler(rewardService *service.RewardService, gate *service.Gate) *RewardHandler {
	return &RewardHandler{rewardService: rewardService, gate: gate}
}

type createRewardRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	PointsRequired   int    `json:"points_required"`
	RequiresApproval bool   `json:"requires_approval"`
}

type updateRewardRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	PointsRequired   *int    `json:"points_required"`
	RequiresApproval *bool   `json:"requires_approval"`
}

// claimRequest optionally carries the price the claimant saw
type claimRequest struct {
	PointsRequired *int `json:"points_required"`
}

type resolveClaimRequest struct {
	Decision string `json:"decision"`
}

// List returns the active rewards of the caller's family
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardService.GetFamilyRewards(r.Context(), familyOf(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rewards))
}

// Create adds a reward to the caller's family
func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	reward, err := h.rewardService.CreateReward(r.Context(), service.CreateRewardInput{
		Title:            req.Title,
		Description:      req.Description,
		PointsRequired:   req.PointsRequired,
		RequiresApproval: req.RequiresApproval,
		FamilyID:         familyOf(r),
		CreatedBy:        user.ID,
	}, user.Role)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, reward)
}

// Update changes the given fields of a reward
func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	reward, err := h.rewardService.UpdateReward(r.Context(), r.PathValue("id"), familyOf(r), service.RewardUpdate{
		Title:            req.Title,
		Description:      req.Description,
		PointsRequired:   req.PointsRequired,
		RequiresApproval: req.RequiresApproval,
	}, user.Role)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reward)
}

// Delete deactivates a reward
func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	capability, err := h.gate.GrantDelete(GetUserFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.rewardService.DeleteReward(r.Context(), r.PathValue("id"), capability); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Claim claims a reward for the caller. When the body names a price the
// direct claim fails if the reward now costs something else.
func (h *RewardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	rewardID := r.PathValue("id")

	var (
		claim *models.RewardClaim
		err   error
	)
	if req.PointsRequired != nil {
		claim, err = h.rewardService.ClaimReward(r.Context(), rewardID, user.ID, *req.PointsRequired)
	} else {
		claim, err = h.rewardService.Claim(r.Context(), rewardID, user.ID)
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, claim)
}

// MyClaims returns the caller's claims
func (h *RewardHandler) MyClaims(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	claims, err := h.rewardService.GetUserClaimedRewards(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(claims))
}

// FamilyClaims returns the family's claims; ?status=pending narrows to open ones
func (h *RewardHandler) FamilyClaims(w http.ResponseWriter, r *http.Request) {
	var (
		claims []models.ClaimWithReward
		err    error
	)
	switch r.URL.Query().Get("status") {
	case "":
		claims, err = h.rewardService.GetFamilyRewardClaims(r.Context(), familyOf(r))
	case string(models.ClaimPending):
		claims, err = h.rewardService.GetPendingClaims(r.Context(), familyOf(r))
	default:
		err = validation.ValidationError{Field: "status", Message: "only status=pending is supported"}
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(claims))
}

// Resolve approves or denies a pending claim
func (h *RewardHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	decision, err := models.ParseClaimDecision(req.Decision)
	if err != nil {
		respondWithServiceError(w, validation.ValidationError{Field: "decision", Message: "decision must be approve or deny"})
		return
	}

	claim, err := h.rewardService.ResolveClaim(r.Context(), r.PathValue("id"), decision, GetUserFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}
