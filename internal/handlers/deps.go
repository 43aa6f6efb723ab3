package handlers

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/services"
	"smartbank/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	CountCustomers(ctx context.Context) (int, error)
}

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
	ListAllWithUsers(ctx context.Context, limit, offset int) ([]store.AccountWithUser, error)
	Stats(ctx context.Context) (store.AccountStats, error)
}

type TransactionStore interface {
	ListAll(ctx context.Context, limit, offset int) ([]models.TransactionView, error)
	Count(ctx context.Context) (int, error)
	TodayActivity(ctx context.Context, dayStart time.Time) (store.TodayActivity, error)
}

type LedgerStore interface {
	Reconcile(ctx context.Context, userID string) ([]store.AccountReconciliation, error)
}

type AdminStore interface {
	Lookup(ctx context.Context, userID string) (store.Principal, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context, q store.Getter) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

type LedgerService interface {
	Deposit(ctx context.Context, req services.DepositRequest) (services.MovementResult, error)
	MockDeposit(ctx context.Context, actor services.Actor, accountID string, amount decimal.Decimal) (services.MovementResult, error)
	Transfer(ctx context.Context, req services.TransferRequest) (services.MovementResult, error)
	CreateAccount(ctx context.Context, req services.CreateAccountRequest) (models.Account, error)
	OpenDefaultAccount(ctx context.Context, tx *sqlx.Tx, userID string) (models.Account, error)
	UpdateAccountStatus(ctx context.Context, actorID, accountID, status string) (models.Account, error)
	UpdateDailyLimit(ctx context.Context, actorID, accountID string, limit decimal.Decimal) (models.Account, error)
}

type Composer interface {
	GetHistory(ctx context.Context, actor services.Actor, accountID string, limit, offset int) (services.History, error)
	GetStatement(ctx context.Context, actor services.Actor, accountID string, start, end *time.Time) (services.Statement, error)
}

type KycService interface {
	Submit(ctx context.Context, userID, documentURL string) (models.User, error)
	Status(ctx context.Context, userID string) (models.User, error)
	Pending(ctx context.Context) ([]models.User, error)
	Review(ctx context.Context, reviewerID, userID, decision, reason string) (models.User, error)
}

// Stores groups the persistence collaborators of the HTTP layer.
type Stores struct {
	Users        UserStore
	Accounts     AccountStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Admin        AdminStore
	Audit        AuditStore
}

type Services struct {
	Ledger   LedgerService
	Composer Composer
	Kyc      KycService
	Policy   services.Policy
}
