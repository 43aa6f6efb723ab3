package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"smartbank/internal/models"
)

// AccountTypeConstraint enforces one account per type per user.
const AccountTypeConstraint = "accounts_user_id_account_type_key"

const accountColumns = `id, account_number, account_type, balance, status, daily_limit, user_id, created_at`

type AccountStore struct {
	db DB
}

type AccountWithUser struct {
	models.Account
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

type AccountStats struct {
	TotalAccounts  int             `db:"total_accounts" json:"total_accounts"`
	ActiveAccounts int             `db:"active_accounts" json:"active_accounts"`
	TotalBalance   decimal.Decimal `db:"total_balance" json:"total_balance"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts the account and returns it with the stored creation time.
// It reports false without error when the account number is already taken
// so the caller can draw a new one.
func (s *AccountStore) Create(ctx context.Context, tx Getter, account models.Account) (models.Account, bool, error) {
	err := tx.GetContext(ctx, &account.CreatedAt, `
		INSERT INTO accounts (id, account_number, account_type, balance, status, daily_limit, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_number) DO NOTHING
		RETURNING created_at
	`, account.ID, account.AccountNumber, account.AccountType, account.Balance, account.Status, account.DailyLimit, account.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	return account, true, nil
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByNumber(ctx context.Context, q Getter, accountNumber string) (models.Account, error) {
	var row models.Account
	err := q.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	rows := []models.Account{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) ExistsForUserAndType(ctx context.Context, q Getter, userID string, accountType string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1 AND account_type = $2)
	`, userID, accountType)
	return exists, err
}

// UpdateBalance overwrites the stored balance. Callers hold the row lock.
func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal) error {
	return s.updateOne(ctx, tx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
}

func (s *AccountStore) UpdateStatus(ctx context.Context, tx Execer, accountID string, status string) error {
	return s.updateOne(ctx, tx, `
		UPDATE accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, accountID)
}

func (s *AccountStore) UpdateDailyLimit(ctx context.Context, tx Execer, accountID string, limit decimal.Decimal) error {
	return s.updateOne(ctx, tx, `
		UPDATE accounts
		SET daily_limit = $1, updated_at = NOW()
		WHERE id = $2
	`, limit, accountID)
}

func (s *AccountStore) updateOne(ctx context.Context, tx Execer, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *AccountStore) ListAllWithUsers(ctx context.Context, limit, offset int) ([]AccountWithUser, error) {
	rows := []AccountWithUser{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.account_number, a.account_type, a.balance, a.status, a.daily_limit, a.user_id, a.created_at,
		       u.email, u.first_name, u.last_name
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) Stats(ctx context.Context) (AccountStats, error) {
	var stats AccountStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(1) AS total_accounts,
		       COUNT(1) FILTER (WHERE status = 'ACTIVE') AS active_accounts,
		       COALESCE(SUM(balance), 0) AS total_balance
		FROM accounts
	`)
	return stats, err
}
