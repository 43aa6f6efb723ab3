package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"smartbank/internal/config"
	"smartbank/internal/db"
	"smartbank/internal/middleware"
	"smartbank/internal/services"
	"smartbank/internal/store"
	"smartbank/internal/websocket"
)

// Auth and general API limits share one window.
const rateWindow = 15 * time.Minute

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	log          *zap.Logger
	users        UserStore
	accounts     AccountStore
	transactions TransactionStore
	ledgerStore  LedgerStore
	admin        AdminStore
	audit        AuditStore
	ledger       LedgerService
	composer     Composer
	kyc          KycService
	policy       services.Policy
	ws           *websocket.Server
	now          func() time.Time
}

func New(txRunner db.TxRunner, cfg config.Config, log *zap.Logger, stores Stores, svc Services, ws *websocket.Server) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		log:          log,
		users:        stores.Users,
		accounts:     stores.Accounts,
		transactions: stores.Transactions,
		ledgerStore:  stores.Ledger,
		admin:        stores.Admin,
		audit:        stores.Audit,
		ledger:       svc.Ledger,
		composer:     svc.Composer,
		kyc:          svc.Kyc,
		policy:       svc.Policy,
		ws:           ws,
		now:          time.Now,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(rateLimit(h.cfg.APIRateLimitPerWindow, rateWindow))

	authenticated := middleware.Auth(h.cfg.JWTSecret)
	verified := middleware.RequireKYC(h.users, h.cfg.RequireKYC)
	authLimit := rateLimit(h.cfg.AuthRateLimitPerWindow, rateWindow)
	txLimit := rateLimit(h.cfg.TxRateLimitPerMinute, time.Minute)
	uploadLimit := rateLimit(h.cfg.KycUploadLimitPerHour, time.Hour)
	admin := func(role string) func(http.Handler) http.Handler {
		return middleware.RequireAdmin(h.admin, role)
	}

	router.Route("/auth", func(r chi.Router) {
		r.With(authLimit).Post("/register", h.Register)
		r.With(authLimit).Post("/login", h.Login)
		r.With(authenticated).Get("/me", h.Me)
	})
	router.Route("/accounts", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/", h.ListAccounts)
		r.With(verified).Post("/", h.CreateAccount)
		r.Get("/self-check", h.SelfCheck)
		r.Get("/{id}/balance", h.GetBalance)
	})
	router.Route("/transactions", func(r chi.Router) {
		r.Use(authenticated)
		r.With(txLimit, verified).Post("/deposit", h.Deposit)
		r.With(verified).Post("/mock-deposit", h.MockDeposit)
		r.With(txLimit, verified).Post("/transfer", h.Transfer)
		r.Get("/history", h.History)
		r.Get("/statement/{accountId}", h.Statement)
	})
	router.Route("/kyc", func(r chi.Router) {
		r.Use(authenticated)
		r.With(uploadLimit).Post("/document", h.SubmitKyc)
		r.Get("/status", h.KycStatus)
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.With(admin("")).Get("/dashboard/stats", h.DashboardStats)
		r.With(admin(store.RoleViewUsers)).Get("/users", h.AdminListUsers)
		r.With(admin(store.RoleViewUsers)).Get("/users/{userId}", h.AdminGetUser)
		r.With(admin(store.RoleManageAccounts)).Get("/accounts", h.AdminListAccounts)
		r.With(admin(store.RoleManageAccounts)).Patch("/accounts/{accountId}/status", h.UpdateAccountStatus)
		r.With(admin(store.RoleManageAccounts)).Patch("/accounts/{accountId}/daily-limit", h.UpdateDailyLimit)
		r.With(admin(store.RoleViewTransactions)).Get("/transactions", h.AdminListTransactions)
		r.With(admin(store.RoleReviewKyc)).Get("/kyc/pending", h.PendingKyc)
		r.With(admin(store.RoleReviewKyc)).Patch("/kyc/{userId}", h.ReviewKyc)
		r.With(admin("")).Post("/promote", h.PromoteAdmin)
		r.With(admin("")).Post("/roles/grant", h.GrantRole)
		r.With(admin(store.RoleViewTransactions)).Get("/audit", h.ListAuditLogs)
		r.With(admin(store.RoleViewTransactions)).Get("/reconcile", h.Reconcile)
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

// rateLimit throttles per client IP. A non-positive limit disables it.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
		}),
	)
}
