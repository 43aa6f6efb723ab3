package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/money"
	"smartbank/internal/services"
)

func accountView(account models.Account) map[string]any {
	return map[string]any{
		"id":             account.ID,
		"account_number": account.AccountNumber,
		"account_type":   account.AccountType,
		"balance":        money.Format(account.Balance),
		"status":         account.Status,
		"daily_limit":    money.Format(account.DailyLimit),
		"user_id":        account.UserID,
		"created_at":     account.CreatedAt,
	}
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_accounts")
		return
	}
	views := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, accountView(account))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts": views,
		"total":    len(views),
	})
}

type createAccountRequest struct {
	AccountType    string          `json:"account_type" validate:"required,oneof=SAVINGS CURRENT FD"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), services.CreateAccountRequest{
		UserID:         userID,
		AccountType:    req.AccountType,
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "account_creation_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"account": accountView(account)})
}

// GetBalance reports a foreign account as missing rather than forbidden.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !actor.Owns(account)) {
		respondError(w, http.StatusNotFound, "account_not_found", services.ErrAccountNotFound.Error())
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_account")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"account_type":   account.AccountType,
		"balance":        money.Format(account.Balance),
		"status":         account.Status,
	})
}

// SelfCheck compares each of the caller's stored balances with the balance
// replayed from their transaction rows.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rows, err := h.ledgerStore.Reconcile(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_self_check")
		return
	}
	respondJSON(w, http.StatusOK, reconciliationViews(rows))
}
