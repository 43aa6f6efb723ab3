package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartbank/internal/db"
	"smartbank/internal/models"
	"smartbank/internal/money"
	"smartbank/internal/store"
	"smartbank/internal/websocket"
)

const (
	maxNumberAttempts  = 5
	defaultDescription = "Cash deposit"
	mockDescription    = "Mock deposit for testing"
	initialDescription = "Initial deposit"
)

type AccountStore interface {
	GetByNumber(ctx context.Context, q store.Getter, accountNumber string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	ExistsForUserAndType(ctx context.Context, q store.Getter, userID string, accountType string) (bool, error)
	Create(ctx context.Context, tx store.Getter, account models.Account) (models.Account, bool, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error
	UpdateStatus(ctx context.Context, tx store.Execer, accountID string, status string) error
	UpdateDailyLimit(ctx context.Context, tx store.Execer, accountID string, limit decimal.Decimal) error
}

type TransactionStore interface {
	Append(ctx context.Context, tx store.Getter, input store.TransactionInput) (models.Transaction, error)
	SumCompletedTransfers(ctx context.Context, q store.Getter, accountID string, since time.Time) (decimal.Decimal, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate) int
}

type LedgerOptions struct {
	DefaultDailyLimit decimal.Decimal
	MockDepositMax    decimal.Decimal
	Clock             func() time.Time
}

// LedgerService moves money. Every movement reads, validates and writes
// inside one unit of work with the touched account rows locked.
type LedgerService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	transactions TransactionStore
	audit        AuditStore
	hub          BalanceHub
	numbers      NumberGenerator
	policy       Policy
	log          *zap.Logger
	dailyLimit   decimal.Decimal
	mockMax      decimal.Decimal
	now          func() time.Time
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, transactions TransactionStore, audit AuditStore, hub BalanceHub, numbers NumberGenerator, policy Policy, log *zap.Logger, opts LedgerOptions) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultDailyLimit.IsZero() {
		opts.DefaultDailyLimit = decimal.NewFromInt(50000)
	}
	if opts.MockDepositMax.IsZero() {
		opts.MockDepositMax = decimal.NewFromInt(100000)
	}
	return &LedgerService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		audit:        audit,
		hub:          hub,
		numbers:      numbers,
		policy:       policy,
		log:          log,
		dailyLimit:   opts.DefaultDailyLimit,
		mockMax:      opts.MockDepositMax,
		now:          opts.Clock,
	}
}

type MovementResult struct {
	TransactionID string
	NewBalance    decimal.Decimal
	Transaction   models.Transaction
}

type DepositRequest struct {
	Actor           Actor
	AccountID       string
	Amount          decimal.Decimal
	Description     string
	ClientRequestID *string
}

func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (MovementResult, error) {
	if req.Description == "" {
		req.Description = defaultDescription
	}
	return s.deposit(ctx, req, store.AuditDeposit)
}

// MockDeposit tops up an account for demos. A zero amount means 1000.
func (s *LedgerService) MockDeposit(ctx context.Context, actor Actor, accountID string, amount decimal.Decimal) (MovementResult, error) {
	if amount.IsZero() {
		amount = decimal.NewFromInt(1000)
	}
	if amount.LessThan(decimal.NewFromInt(1)) || amount.GreaterThan(s.mockMax) {
		return MovementResult{}, ErrInvalidAmount
	}
	return s.deposit(ctx, DepositRequest{
		Actor:       actor,
		AccountID:   accountID,
		Amount:      amount,
		Description: mockDescription,
	}, store.AuditMockDeposit)
}

func (s *LedgerService) deposit(ctx context.Context, req DepositRequest, action string) (MovementResult, error) {
	var result MovementResult
	var account models.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if !req.Actor.Owns(account) {
			return ErrAccountNotFound
		}
		if err := s.policy.Active(account); err != nil {
			return err
		}
		amount, err := s.policy.Amount(req.Amount)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(amount)
		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, account.Balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		row, err := s.append(ctx, tx, store.TransactionInput{
			ToAccountID:     &account.ID,
			Type:            models.TransactionTypeDeposit,
			Amount:          amount,
			BalanceAfter:    account.Balance,
			Description:     req.Description,
			ClientRequestID: req.ClientRequestID,
		})
		if err != nil {
			return err
		}
		result = MovementResult{TransactionID: row.ID, NewBalance: account.Balance, Transaction: row}
		return s.audit.Log(ctx, tx, req.Actor.UserID, action, "transaction", row.ID, map[string]string{
			"account_id": account.ID,
			"amount":     money.Format(amount),
		})
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.push(account, result)
	return result, nil
}

type TransferRequest struct {
	Actor           Actor
	FromAccountID   string
	ToAccountNumber string
	Amount          decimal.Decimal
	Description     string
	ClientRequestID *string
}

// Transfer debits the source, credits the destination and appends a single
// TRANSFER row. Checks run in a fixed order so that the first failing rule
// is the one reported.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (MovementResult, error) {
	amount, err := s.policy.Amount(req.Amount)
	if err != nil {
		return MovementResult{}, err
	}
	if req.Description == "" {
		req.Description = "Transfer to " + req.ToAccountNumber
	}
	var result MovementResult
	var source, destination models.Account
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		target, found, err := s.findDestination(ctx, tx, req.ToAccountNumber)
		if err != nil {
			return err
		}
		destinationID := ""
		if found {
			destinationID = target.ID
		}
		source, destination, err = s.lockPair(ctx, tx, req.FromAccountID, destinationID)
		if err != nil {
			return err
		}
		if !req.Actor.Owns(source) {
			return ErrForbidden
		}
		if err := s.policy.Active(source); err != nil {
			return err
		}
		if err := s.policy.Funds(source, amount); err != nil {
			return err
		}
		today, err := s.transactions.SumCompletedTransfers(ctx, tx, source.ID, s.policy.DayStart(s.now()))
		if err != nil {
			return fmt.Errorf("sum transfers: %w", err)
		}
		if err := s.policy.DailyLimit(source, today, amount); err != nil {
			return err
		}
		if !found {
			return ErrDestinationNotFound
		}
		if err := s.policy.Destination(source, destination); err != nil {
			return err
		}

		debited := source.Balance.Sub(amount)
		credited := destination.Balance.Add(amount)
		if err := ensureConserved(source.Balance, debited, destination.Balance, credited); err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, source.ID, debited); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
		if err := s.accounts.UpdateBalance(ctx, tx, destination.ID, credited); err != nil {
			return fmt.Errorf("credit destination: %w", err)
		}
		source.Balance = debited
		destination.Balance = credited

		row, err := s.append(ctx, tx, store.TransactionInput{
			FromAccountID:   &source.ID,
			ToAccountID:     &destination.ID,
			Type:            models.TransactionTypeTransfer,
			Amount:          amount,
			BalanceAfter:    debited,
			Description:     req.Description,
			ClientRequestID: req.ClientRequestID,
		})
		if err != nil {
			return err
		}
		result = MovementResult{TransactionID: row.ID, NewBalance: debited, Transaction: row}
		return s.audit.Log(ctx, tx, req.Actor.UserID, store.AuditTransfer, "transaction", row.ID, map[string]string{
			"from_account_id": source.ID,
			"to_account_id":   destination.ID,
			"amount":          money.Format(amount),
		})
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.log.Info("transfer completed",
		zap.String("transaction_id", result.TransactionID),
		zap.String("from_account_id", source.ID),
		zap.String("to_account_id", destination.ID),
	)
	s.push(source, result)
	s.push(destination, MovementResult{TransactionID: result.TransactionID, NewBalance: destination.Balance, Transaction: result.Transaction})
	return result, nil
}

type CreateAccountRequest struct {
	UserID         string
	AccountType    string
	InitialDeposit decimal.Decimal
}

func (s *LedgerService) CreateAccount(ctx context.Context, req CreateAccountRequest) (models.Account, error) {
	if err := s.policy.AccountType(req.AccountType); err != nil {
		return models.Account{}, err
	}
	var account models.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.accounts.ExistsForUserAndType(ctx, tx, req.UserID, req.AccountType)
		if err != nil {
			return fmt.Errorf("check account type: %w", err)
		}
		if exists {
			return ErrDuplicateAccountType
		}
		deposit, err := s.policy.InitialDeposit(req.AccountType, req.InitialDeposit)
		if err != nil {
			return err
		}
		account, err = s.insertAccount(ctx, tx, req.UserID, req.AccountType, deposit)
		if err != nil {
			return err
		}
		if money.Positive(deposit) {
			if _, err := s.append(ctx, tx, store.TransactionInput{
				ToAccountID:  &account.ID,
				Type:         models.TransactionTypeDeposit,
				Amount:       deposit,
				BalanceAfter: deposit,
				Description:  initialDescription,
			}); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, req.UserID, store.AuditAccountOpen, "account", account.ID, map[string]string{
			"account_type":    account.AccountType,
			"initial_deposit": money.Format(deposit),
		})
	})
	if db.IsUniqueViolation(err, store.AccountTypeConstraint) {
		return models.Account{}, ErrDuplicateAccountType
	}
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// OpenDefaultAccount opens the zero-balance SAVINGS account every new user
// gets, inside the caller's unit of work. No transaction row is written.
func (s *LedgerService) OpenDefaultAccount(ctx context.Context, tx *sqlx.Tx, userID string) (models.Account, error) {
	return s.insertAccount(ctx, tx, userID, models.AccountTypeSavings, decimal.Zero)
}

func (s *LedgerService) insertAccount(ctx context.Context, tx *sqlx.Tx, userID, accountType string, balance decimal.Decimal) (models.Account, error) {
	account := models.Account{
		ID:          uuid.NewString(),
		AccountType: accountType,
		Balance:     balance,
		Status:      models.AccountStatusActive,
		DailyLimit:  s.dailyLimit,
		UserID:      userID,
	}
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		account.AccountNumber = s.numbers.Next()
		stored, inserted, err := s.accounts.Create(ctx, tx, account)
		if err != nil {
			return models.Account{}, fmt.Errorf("create account: %w", err)
		}
		if inserted {
			return stored, nil
		}
		s.log.Warn("account number collision", zap.String("account_number", account.AccountNumber))
	}
	return models.Account{}, ErrNumberSpaceExhausted
}

func (s *LedgerService) UpdateAccountStatus(ctx context.Context, actorID, accountID, status string) (models.Account, error) {
	var account models.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := s.policy.StatusChange(account.Status, status); err != nil {
			return err
		}
		previous := account.Status
		if err := s.accounts.UpdateStatus(ctx, tx, account.ID, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		account.Status = status
		return s.audit.Log(ctx, tx, actorID, store.AuditAccountStatus, "account", account.ID, map[string]string{
			"from": previous,
			"to":   status,
		})
	})
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *LedgerService) UpdateDailyLimit(ctx context.Context, actorID, accountID string, limit decimal.Decimal) (models.Account, error) {
	normalized, err := s.policy.Limit(limit)
	if err != nil {
		return models.Account{}, err
	}
	var account models.Account
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := s.accounts.UpdateDailyLimit(ctx, tx, account.ID, normalized); err != nil {
			return fmt.Errorf("update daily limit: %w", err)
		}
		account.DailyLimit = normalized
		return s.audit.Log(ctx, tx, actorID, store.AuditDailyLimit, "account", account.ID, map[string]string{
			"daily_limit": money.Format(normalized),
		})
	})
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx store.Getter, accountID string) (models.Account, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("lock account: %w", err)
	}
	return account, nil
}

func (s *LedgerService) findDestination(ctx context.Context, tx store.Getter, accountNumber string) (models.Account, bool, error) {
	account, err := s.accounts.GetByNumber(ctx, tx, accountNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("resolve destination: %w", err)
	}
	return account, true, nil
}

// lockPair locks both rows in id order so that two transfers crossing the
// same accounts cannot deadlock. An empty or equal second id locks one row.
func (s *LedgerService) lockPair(ctx context.Context, tx store.Getter, sourceID, destinationID string) (models.Account, models.Account, error) {
	if destinationID == "" || destinationID == sourceID {
		source, err := s.lockAccount(ctx, tx, sourceID)
		return source, source, err
	}
	first, second := orderedIDs(sourceID, destinationID)
	firstAccount, firstErr := s.lockAccount(ctx, tx, first)
	secondAccount, secondErr := s.lockAccount(ctx, tx, second)
	source, sourceErr, destination, destinationErr := firstAccount, firstErr, secondAccount, secondErr
	if first != sourceID {
		source, sourceErr, destination, destinationErr = secondAccount, secondErr, firstAccount, firstErr
	}
	if sourceErr != nil {
		return models.Account{}, models.Account{}, sourceErr
	}
	if destinationErr != nil {
		return models.Account{}, models.Account{}, destinationErr
	}
	return source, destination, nil
}

func (s *LedgerService) append(ctx context.Context, tx store.Getter, input store.TransactionInput) (models.Transaction, error) {
	input.ID = uuid.NewString()
	input.Status = models.TransactionStatusCompleted
	row, err := s.transactions.Append(ctx, tx, input)
	if db.IsUniqueViolation(err, store.ClientRequestConstraint) {
		return models.Transaction{}, ErrDuplicateRequest
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return row, nil
}

func (s *LedgerService) push(account models.Account, result MovementResult) {
	if s.hub == nil || account.UserID == "" {
		return
	}
	delivered := s.hub.BroadcastBalance(account.UserID, websocket.BalanceUpdate{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Balance:       money.Format(result.NewBalance),
		TransactionID: result.TransactionID,
		Kind:          result.Transaction.TransactionType,
	})
	s.log.Debug("balance pushed",
		zap.String("account_id", account.ID),
		zap.String("transaction_id", result.TransactionID),
		zap.Int("sockets", delivered),
	)
}

// ensureConserved checks that the debit and the credit cancel out.
func ensureConserved(sourceBefore, sourceAfter, destinationBefore, destinationAfter decimal.Decimal) error {
	delta := sourceAfter.Sub(sourceBefore).Add(destinationAfter.Sub(destinationBefore))
	if !delta.IsZero() {
		return errors.New("transfer legs are not balanced")
	}
	if sourceAfter.IsNegative() {
		return errors.New("transfer would overdraw source")
	}
	return nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}
