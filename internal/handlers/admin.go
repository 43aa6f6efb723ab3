package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"smartbank/internal/auth"
	"smartbank/internal/middleware"
	"smartbank/internal/money"
	"smartbank/internal/store"
)

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customers, err := h.users.CountCustomers(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_stats")
		return
	}
	accounts, err := h.accounts.Stats(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_stats")
		return
	}
	transactions, err := h.transactions.Count(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_stats")
		return
	}
	today, err := h.transactions.TodayActivity(ctx, h.policy.DayStart(h.now()))
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total_users":        customers,
		"total_accounts":     accounts.TotalAccounts,
		"active_accounts":    accounts.ActiveAccounts,
		"total_balance":      money.Format(accounts.TotalBalance),
		"total_transactions": transactions,
		"today_transactions": today.Count,
		"today_volume":       money.Format(today.Volume),
	})
}

func (h *Handler) AdminListAccounts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r.URL.Query())
	rows, err := h.accounts.ListAllWithUsers(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_accounts")
		return
	}
	views := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		view := accountView(row.Account)
		view["email"] = row.Email
		view["first_name"] = row.FirstName
		view["last_name"] = row.LastName
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": views, "page": page, "limit": limit})
}

type accountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE FROZEN CLOSED"`
}

func (h *Handler) UpdateAccountStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req accountStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	account, err := h.ledger.UpdateAccountStatus(r.Context(), userID, chi.URLParam(r, "accountId"), req.Status)
	if err != nil {
		h.respondServiceError(w, r, err, "account_update_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"account": accountView(account)})
}

type dailyLimitRequest struct {
	DailyLimit decimal.Decimal `json:"daily_limit"`
}

func (h *Handler) UpdateDailyLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dailyLimitRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	account, err := h.ledger.UpdateDailyLimit(r.Context(), userID, chi.URLParam(r, "accountId"), req.DailyLimit)
	if err != nil {
		h.respondServiceError(w, r, err, "account_update_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"account": accountView(account)})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r.URL.Query())
	rows, err := h.transactions.ListAll(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_transactions")
		return
	}
	total, err := h.transactions.Count(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_transactions")
		return
	}
	views := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		view := transactionView(row.Transaction)
		view["from_account_number"] = row.FromAccountNumber
		view["to_account_number"] = row.ToAccountNumber
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": views,
		"total":        total,
		"page":         page,
		"limit":        limit,
	})
}

type promoteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	target, err := h.users.GetByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "user_not_found", "user not found")
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_promote_admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, target.ID, false, &userID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, store.AuditAdminPromote, "admin", target.ID, map[string]string{
			"target_user_id": target.ID,
		})
	})
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_promote_admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted", "user_id": target.ID})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id" validate:"required"`
	Role        string `json:"role" validate:"required"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req grantRoleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if !store.IsKnownRole(req.Role) {
		respondError(w, http.StatusBadRequest, "unknown_role", "role must be one of: "+strings.Join(store.AllRoles, ", "))
		return
	}
	target, err := h.admin.Lookup(r.Context(), req.AdminUserID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_grant_role")
		return
	}
	if !target.IsAdmin {
		respondError(w, http.StatusBadRequest, "not_an_admin", "target is not an admin")
		return
	}
	if target.IsSuper {
		respondError(w, http.StatusBadRequest, "super_admin_target", "super admins already hold every role")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, store.AuditAdminGrantRole, "admin_role", req.AdminUserID, map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
	})
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_grant_role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) requireSuper(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	principal, resolved := middleware.PrincipalFromContext(r.Context())
	if !resolved {
		var err error
		principal, err = h.admin.Lookup(r.Context(), userID)
		if err != nil {
			h.respondServiceError(w, r, err, "unable_to_verify_admin")
			return "", false
		}
	}
	if !principal.IsSuper {
		respondError(w, http.StatusForbidden, "super_admin_required", "super admin privileges required")
		return "", false
	}
	return userID, true
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePage(r.URL.Query())
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_audit_logs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": rows, "page": page, "limit": limit})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledgerStore.Reconcile(r.Context(), "")
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_reconcile")
		return
	}
	respondJSON(w, http.StatusOK, reconciliationViews(rows))
}

func reconciliationViews(rows []store.AccountReconciliation) map[string]any {
	views := make([]map[string]any, 0, len(rows))
	mismatched := 0
	for _, row := range rows {
		if !row.Difference.IsZero() {
			mismatched++
		}
		views = append(views, map[string]any{
			"account_id":        row.ID,
			"account_number":    row.AccountNumber,
			"user_id":           row.UserID,
			"stored_balance":    money.Format(row.StoredBalance),
			"ledger_balance":    money.Format(row.LedgerBalance),
			"difference":        money.Format(row.Difference),
			"transaction_count": row.TransactionCount,
		})
	}
	return map[string]any{"accounts": views, "mismatched": mismatched}
}

// WSBalances authenticates with a token query parameter, since browsers
// cannot set headers on a websocket handshake, or a bearer header.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}
	h.ws.Serve(w, r.WithContext(middleware.WithUserID(r.Context(), claims.UserID)), claims.UserID)
}
