package handlers

import (
	"net/http"

	"familypoints/internal/service"
)

// FamilyHandler handles family creation and membership requests
type FamilyHandler struct {
	familyService *service.FamilyService
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(familyService *service.FamilyService) *FamilyHandler {
	return &FamilyHandler{familyService: familyService}
}

type createFamilyRequest struct {
	Name string `json:"name"`
}

type joinFamilyRequest struct {
	FamilyCode string `json:"family_code"`
}

// CreateFamily creates a family with the caller as its admin
func (h *FamilyHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	family, err := h.familyService.CreateFamily(r.Context(), req.Name, user.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, family)
}

// JoinFamily adds the caller to a family by invitation code
func (h *FamilyHandler) JoinFamily(w http.ResponseWriter, r *http.Request) {
	var req joinFamilyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := GetUserFromContext(r.Context())
	family, err := h.familyService.JoinFamily(r.Context(), req.FamilyCode, user.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, family)
}

// Members returns the caller's family with its members
func (h *FamilyHandler) Members(w http.ResponseWriter, r *http.Request) {
	family, err := h.familyService.GetFamily(r.Context(), familyOf(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, family)
}
