package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"smartbank/internal/db"
	"smartbank/internal/middleware"
	"smartbank/internal/services"
	"smartbank/internal/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

type errorKind struct {
	err    error
	status int
	code   string
}

// ErrDestinationInactive wraps ErrInactiveAccount, so it is listed first.
var errorKinds = []errorKind{
	{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{services.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{services.ErrDestinationInactive, http.StatusBadRequest, "destination_inactive"},
	{services.ErrInactiveAccount, http.StatusBadRequest, "account_inactive"},
	{services.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{services.ErrDailyLimitExceeded, http.StatusBadRequest, "daily_limit_exceeded"},
	{services.ErrDestinationNotFound, http.StatusNotFound, "destination_not_found"},
	{services.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{services.ErrInvalidAccountType, http.StatusBadRequest, "invalid_account_type"},
	{services.ErrDuplicateAccountType, http.StatusConflict, "duplicate_account_type"},
	{services.ErrBelowMinimumDeposit, http.StatusBadRequest, "below_minimum_deposit"},
	{services.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{services.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{services.ErrInvalidLimit, http.StatusBadRequest, "invalid_limit"},
	{services.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{services.ErrInvalidKycDecision, http.StatusBadRequest, "invalid_kyc_decision"},
	{services.ErrRejectionReason, http.StatusBadRequest, "rejection_reason_required"},
	{services.ErrNoKycDocument, http.StatusBadRequest, "kyc_document_missing"},
	{services.ErrNumberSpaceExhausted, http.StatusServiceUnavailable, "account_number_unavailable"},
	{db.ErrRetryLimit, http.StatusServiceUnavailable, "busy_retry_later"},
}

// respondServiceError writes the status and code of a known error kind.
// Anything else is logged and reported as fallback with no detail.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			respondError(w, kind.status, kind.code, kind.err.Error())
			return
		}
	}
	h.log.Error(fallback,
		zap.Error(err),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
	)
	respondError(w, http.StatusInternalServerError, fallback, "the request could not be completed")
}

// decodeRequest reads a JSON body into dst and checks its validate tags.
// On failure the response has been written and false is returned.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", "request body is not valid JSON")
		return false
	}
	if err := validator.Struct(dst); err != nil {
		var fields validator.Errors
		if errors.As(err, &fields) {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "validation_failed",
				"message": fields.Error(),
				"fields":  fields,
			})
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_payload", "request body is invalid")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	return userID, ok
}

// actor resolves the caller and whether admin rights let them bypass
// account ownership.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return services.Actor{}, false
	}
	principal, err := h.admin.Lookup(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_verify_user")
		return services.Actor{}, false
	}
	return services.Actor{UserID: userID, IsAdmin: principal.IsAdmin}, true
}
