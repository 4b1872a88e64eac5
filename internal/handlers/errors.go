package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"familypoints/internal/models"
	"familypoints/internal/repository"
	"familypoints/internal/security"
	"familypoints/internal/service"
	"familypoints/internal/validation"

	log "github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.WithFields(log.Fields{"status": status, "error": err}).Error(logMsg)
	}

	respondJSON(w, status, errorResponse{Error: userMsg})
}

// respondWithServiceError maps a service error onto a status code and its
// human-readable message. Unrecognised errors are logged and hidden.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var (
		permErr       *service.PermissionError
		notFoundErr   *service.NotFoundOrForbiddenError
		transitionErr *service.InvalidTransitionError
		compErr       *service.CompensationError
		validationErr validation.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, validationErr.Message, "", nil)
	case errors.As(err, &permErr):
		respondWithError(w, http.StatusForbidden, permErr.Error(), "", nil)
	case errors.As(err, &notFoundErr):
		respondWithError(w, http.StatusNotFound, notFoundErr.Error(), "", nil)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrFamilyNotFound):
		respondWithError(w, http.StatusNotFound, ErrNotFound, "", nil)
	case errors.As(err, &transitionErr):
		respondWithError(w, http.StatusConflict, transitionErr.Error(), "", nil)
	case errors.As(err, &compErr):
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Rollback failed", err)
	case errors.Is(err, repository.ErrInsufficientPoints):
		respondWithError(w, http.StatusConflict, "Not enough points for this reward", "", nil)
	case errors.Is(err, service.ErrPriceChanged),
		errors.Is(err, service.ErrRewardInactive),
		errors.Is(err, service.ErrApprovalRequired),
		errors.Is(err, service.ErrApprovalNotRequired),
		errors.Is(err, service.ErrAlreadyInFamily),
		errors.Is(err, service.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, capitalize(err.Error()), "", nil)
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, security.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, capitalize(err.Error()), "", nil)
	case errors.Is(err, models.ErrUnknownEnumValue):
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Stored value could not be read", err)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "", err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return false
	}
	return true
}
