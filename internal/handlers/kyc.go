package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"smartbank/internal/models"
)

func kycView(user models.User) map[string]any {
	return map[string]any{
		"user_id":              user.ID,
		"email":                user.Email,
		"first_name":           user.FirstName,
		"last_name":            user.LastName,
		"kyc_status":           user.KycStatus,
		"document_url":         user.DocumentURL,
		"kyc_rejection_reason": user.KycRejectionReason,
		"id_type":              user.IDType,
		"id_number":            user.IDNumber,
	}
}

type kycDocumentRequest struct {
	DocumentURL string `json:"document_url" validate:"required,url,max=2048"`
}

func (h *Handler) SubmitKyc(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req kycDocumentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := h.kyc.Submit(r.Context(), userID, req.DocumentURL)
	if err != nil {
		h.respondServiceError(w, r, err, "kyc_submit_failed")
		return
	}
	respondJSON(w, http.StatusOK, kycView(user))
}

func (h *Handler) KycStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.kyc.Status(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_kyc")
		return
	}
	respondJSON(w, http.StatusOK, kycView(user))
}

func (h *Handler) PendingKyc(w http.ResponseWriter, r *http.Request) {
	users, err := h.kyc.Pending(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_kyc")
		return
	}
	views := make([]map[string]any, 0, len(users))
	for _, user := range users {
		views = append(views, kycView(user))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": views, "total": len(views)})
}

type kycReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=VERIFIED REJECTED"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) ReviewKyc(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req kycReviewRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := h.kyc.Review(r.Context(), reviewerID, chi.URLParam(r, "userId"), req.Status, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err, "kyc_review_failed")
		return
	}
	respondJSON(w, http.StatusOK, kycView(user))
}
