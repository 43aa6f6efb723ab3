package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r.URL.Query())
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_users")
		return
	}
	total, err := h.users.CountCustomers(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handler) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "user_not_found", "user not found")
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_user")
		return
	}
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_user")
		return
	}
	views := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, accountView(account))
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": user, "accounts": views})
}
