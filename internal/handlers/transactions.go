package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/money"
	"smartbank/internal/services"
)

func transactionView(row models.Transaction) map[string]any {
	return map[string]any{
		"id":               row.ID,
		"from_account_id":  row.FromAccountID,
		"to_account_id":    row.ToAccountID,
		"transaction_type": row.TransactionType,
		"amount":           money.Format(row.Amount),
		"balance_after":    money.Format(row.BalanceAfter),
		"description":      row.Description,
		"status":           row.Status,
		"created_at":       row.CreatedAt,
	}
}

func movementView(result services.MovementResult) map[string]any {
	return map[string]any{
		"transaction_id": result.TransactionID,
		"new_balance":    money.Format(result.NewBalance),
		"transaction":    transactionView(result.Transaction),
	}
}

type depositRequest struct {
	AccountID       string          `json:"account_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"max=255"`
	ClientRequestID *string         `json:"client_request_id" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.ledger.Deposit(r.Context(), services.DepositRequest{
		Actor:           actor,
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, movementView(result))
}

type mockDepositRequest struct {
	AccountID string          `json:"account_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handler) MockDeposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req mockDepositRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.ledger.MockDeposit(r.Context(), actor, req.AccountID, req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, movementView(result))
}

type transferRequest struct {
	FromAccountID   string          `json:"from_account_id" validate:"required"`
	ToAccountNumber string          `json:"to_account_number" validate:"required,max=32"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"max=255"`
	ClientRequestID *string         `json:"client_request_id" validate:"omitempty,min=1,max=64"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.ledger.Transfer(r.Context(), services.TransferRequest{
		Actor:           actor,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		Description:     req.Description,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "transfer_failed")
		return
	}
	respondJSON(w, http.StatusCreated, movementView(result))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	accountID := queryValue(query, "account_id", "accountId")
	if accountID == "" {
		respondError(w, http.StatusBadRequest, "account_id_required", "account_id query parameter is required")
		return
	}
	limit := parseInt(query.Get("limit"), services.DefaultHistoryLimit)
	offset := parseOffset(query.Get("offset"))
	history, err := h.composer.GetHistory(r.Context(), actor, accountID, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	loc := h.cfg.Location()
	start, err := parseDateBound(queryValue(query, "start_date", "startDate"), false, loc)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD or RFC 3339")
		return
	}
	end, err := parseDateBound(queryValue(query, "end_date", "endDate"), true, loc)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD or RFC 3339")
		return
	}
	if start != nil && end != nil && start.After(*end) {
		respondError(w, http.StatusBadRequest, "invalid_date", "start_date must not be after end_date")
		return
	}
	statement, err := h.composer.GetStatement(r.Context(), actor, chi.URLParam(r, "accountId"), start, end)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_statement")
		return
	}
	respondJSON(w, http.StatusOK, statement)
}
