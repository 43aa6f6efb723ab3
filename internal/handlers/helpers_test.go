package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"smartbank/internal/auth"
	"smartbank/internal/config"
	"smartbank/internal/middleware"
	"smartbank/internal/models"
	"smartbank/internal/services"
	"smartbank/internal/store"
	"smartbank/internal/websocket"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn         func(ctx context.Context, tx store.Execer, user models.User) error
	getByEmailFn     func(ctx context.Context, email string) (models.User, error)
	getByIDFn        func(ctx context.Context, userID string) (models.User, error)
	listFn           func(ctx context.Context, limit, offset int) ([]models.User, error)
	countCustomersFn func(ctx context.Context) (int, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubUserStore) CountCustomers(ctx context.Context) (int, error) {
	if s.countCustomersFn == nil {
		return 0, nil
	}
	return s.countCustomersFn(ctx)
}

type stubAccountStore struct {
	getByIDFn          func(ctx context.Context, accountID string) (models.Account, error)
	listByUserFn       func(ctx context.Context, userID string) ([]models.Account, error)
	listAllWithUsersFn func(ctx context.Context, limit, offset int) ([]store.AccountWithUser, error)
	statsFn            func(ctx context.Context) (store.AccountStats, error)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	if s.getByIDFn == nil {
		return models.Account{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, accountID)
}

func (s stubAccountStore) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubAccountStore) ListAllWithUsers(ctx context.Context, limit, offset int) ([]store.AccountWithUser, error) {
	if s.listAllWithUsersFn == nil {
		return nil, nil
	}
	return s.listAllWithUsersFn(ctx, limit, offset)
}

func (s stubAccountStore) Stats(ctx context.Context) (store.AccountStats, error) {
	if s.statsFn == nil {
		return store.AccountStats{}, nil
	}
	return s.statsFn(ctx)
}

type stubTransactionStore struct {
	listAllFn       func(ctx context.Context, limit, offset int) ([]models.TransactionView, error)
	countFn         func(ctx context.Context) (int, error)
	todayActivityFn func(ctx context.Context, dayStart time.Time) (store.TodayActivity, error)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]models.TransactionView, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubTransactionStore) Count(ctx context.Context) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx)
}

func (s stubTransactionStore) TodayActivity(ctx context.Context, dayStart time.Time) (store.TodayActivity, error) {
	if s.todayActivityFn == nil {
		return store.TodayActivity{}, nil
	}
	return s.todayActivityFn(ctx, dayStart)
}

type stubLedgerStore struct {
	reconcileFn func(ctx context.Context, userID string) ([]store.AccountReconciliation, error)
}

func (s stubLedgerStore) Reconcile(ctx context.Context, userID string) ([]store.AccountReconciliation, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx, userID)
}

type stubAdminStore struct {
	lookupFn      func(ctx context.Context, userID string) (store.Principal, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	rolesFn       func(ctx context.Context, userID string) ([]string, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context, q store.Getter) (bool, error)
}

func (s stubAdminStore) Lookup(ctx context.Context, userID string) (store.Principal, error) {
	if s.lookupFn == nil {
		return store.Principal{}, nil
	}
	return s.lookupFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) Roles(ctx context.Context, userID string) ([]string, error) {
	if s.rolesFn == nil {
		return []string{}, nil
	}
	return s.rolesFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, q store.Getter) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx, q)
}

// principals answers Lookup from a fixed table; unknown users are customers.
func principals(table map[string]store.Principal) func(context.Context, string) (store.Principal, error) {
	return func(_ context.Context, userID string) (store.Principal, error) {
		return table[userID], nil
	}
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedgerService struct {
	depositFn       func(ctx context.Context, req services.DepositRequest) (services.MovementResult, error)
	mockDepositFn   func(ctx context.Context, actor services.Actor, accountID string, amount decimal.Decimal) (services.MovementResult, error)
	transferFn      func(ctx context.Context, req services.TransferRequest) (services.MovementResult, error)
	createAccountFn func(ctx context.Context, req services.CreateAccountRequest) (models.Account, error)
	openDefaultFn   func(ctx context.Context, tx *sqlx.Tx, userID string) (models.Account, error)
	updateStatusFn  func(ctx context.Context, actorID, accountID, status string) (models.Account, error)
	updateLimitFn   func(ctx context.Context, actorID, accountID string, limit decimal.Decimal) (models.Account, error)
}

func (s stubLedgerService) Deposit(ctx context.Context, req services.DepositRequest) (services.MovementResult, error) {
	if s.depositFn == nil {
		return services.MovementResult{}, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubLedgerService) MockDeposit(ctx context.Context, actor services.Actor, accountID string, amount decimal.Decimal) (services.MovementResult, error) {
	if s.mockDepositFn == nil {
		return services.MovementResult{}, nil
	}
	return s.mockDepositFn(ctx, actor, accountID, amount)
}

func (s stubLedgerService) Transfer(ctx context.Context, req services.TransferRequest) (services.MovementResult, error) {
	if s.transferFn == nil {
		return services.MovementResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubLedgerService) CreateAccount(ctx context.Context, req services.CreateAccountRequest) (models.Account, error) {
	if s.createAccountFn == nil {
		return models.Account{}, nil
	}
	return s.createAccountFn(ctx, req)
}

func (s stubLedgerService) OpenDefaultAccount(ctx context.Context, tx *sqlx.Tx, userID string) (models.Account, error) {
	if s.openDefaultFn == nil {
		return models.Account{ID: "acc-default", AccountNumber: "0000000000000000001", UserID: userID}, nil
	}
	return s.openDefaultFn(ctx, tx, userID)
}

func (s stubLedgerService) UpdateAccountStatus(ctx context.Context, actorID, accountID, status string) (models.Account, error) {
	if s.updateStatusFn == nil {
		return models.Account{}, nil
	}
	return s.updateStatusFn(ctx, actorID, accountID, status)
}

func (s stubLedgerService) UpdateDailyLimit(ctx context.Context, actorID, accountID string, limit decimal.Decimal) (models.Account, error) {
	if s.updateLimitFn == nil {
		return models.Account{}, nil
	}
	return s.updateLimitFn(ctx, actorID, accountID, limit)
}

type stubComposer struct {
	historyFn   func(ctx context.Context, actor services.Actor, accountID string, limit, offset int) (services.History, error)
	statementFn func(ctx context.Context, actor services.Actor, accountID string, start, end *time.Time) (services.Statement, error)
}

func (s stubComposer) GetHistory(ctx context.Context, actor services.Actor, accountID string, limit, offset int) (services.History, error) {
	if s.historyFn == nil {
		return services.History{}, nil
	}
	return s.historyFn(ctx, actor, accountID, limit, offset)
}

func (s stubComposer) GetStatement(ctx context.Context, actor services.Actor, accountID string, start, end *time.Time) (services.Statement, error) {
	if s.statementFn == nil {
		return services.Statement{}, nil
	}
	return s.statementFn(ctx, actor, accountID, start, end)
}

type stubKycService struct {
	submitFn  func(ctx context.Context, userID, documentURL string) (models.User, error)
	statusFn  func(ctx context.Context, userID string) (models.User, error)
	pendingFn func(ctx context.Context) ([]models.User, error)
	reviewFn  func(ctx context.Context, reviewerID, userID, decision, reason string) (models.User, error)
}

func (s stubKycService) Submit(ctx context.Context, userID, documentURL string) (models.User, error) {
	if s.submitFn == nil {
		return models.User{}, nil
	}
	return s.submitFn(ctx, userID, documentURL)
}

func (s stubKycService) Status(ctx context.Context, userID string) (models.User, error) {
	if s.statusFn == nil {
		return models.User{}, nil
	}
	return s.statusFn(ctx, userID)
}

func (s stubKycService) Pending(ctx context.Context) ([]models.User, error) {
	if s.pendingFn == nil {
		return nil, nil
	}
	return s.pendingFn(ctx)
}

func (s stubKycService) Review(ctx context.Context, reviewerID, userID, decision, reason string) (models.User, error) {
	if s.reviewFn == nil {
		return models.User{}, nil
	}
	return s.reviewFn(ctx, reviewerID, userID, decision, reason)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		LedgerTimezone: "UTC",
	}
}

// newTestHandler fills every collaborator left nil with an empty stub.
func newTestHandler(txRunner fakeTxRunner, stores Stores, svc Services) *Handler {
	if stores.Users == nil {
		stores.Users = stubUserStore{}
	}
	if stores.Accounts == nil {
		stores.Accounts = stubAccountStore{}
	}
	if stores.Transactions == nil {
		stores.Transactions = stubTransactionStore{}
	}
	if stores.Ledger == nil {
		stores.Ledger = stubLedgerStore{}
	}
	if stores.Admin == nil {
		stores.Admin = stubAdminStore{}
	}
	if stores.Audit == nil {
		stores.Audit = stubAuditStore{}
	}
	if svc.Ledger == nil {
		svc.Ledger = stubLedgerService{}
	}
	if svc.Composer == nil {
		svc.Composer = stubComposer{}
	}
	if svc.Kyc == nil {
		svc.Kyc = stubKycService{}
	}
	cfg := testConfig()
	if svc.Policy == (services.Policy{}) {
		svc.Policy = services.NewPolicy(cfg.Location())
	}
	hub := websocket.NewHub()
	return New(txRunner, cfg, nil, stores, svc, websocket.NewServer(hub, cfg.Origins(), nil))
}

// serve sends a request through the full router, authenticated as userID
// unless it is empty.
func serve(t *testing.T, h *Handler, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+testToken(t, userID))
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

// serveWithAuth calls a single handler behind the auth middleware, with
// optional chi URL params given as name, value pairs.
func serveWithAuth(t *testing.T, handler http.HandlerFunc, userID, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken(t, userID))
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			routeCtx.URLParams.Add(params[i], params[i+1])
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	rr := httptest.NewRecorder()
	middleware.Auth(testSecret)(handler).ServeHTTP(rr, req)
	return rr
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["error"]; got != code {
		t.Fatalf("expected error %q, got %v", code, got)
	}
}

func stringPtr(value string) *string {
	return &value
}
