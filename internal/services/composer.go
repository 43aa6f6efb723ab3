package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/money"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type AccountReader interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
}

type TransactionReader interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionView, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	ListForStatement(ctx context.Context, accountID string, start, end *time.Time) ([]models.TransactionView, error)
}

type BalanceReader interface {
	BalanceAsOf(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error)
}

type UserReader interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

// Composer builds read-only views of an account from stored transaction
// rows. It never writes.
type Composer struct {
	accounts     AccountReader
	transactions TransactionReader
	balances     BalanceReader
	users        UserReader
}

func NewComposer(accounts AccountReader, transactions TransactionReader, balances BalanceReader, users UserReader) *Composer {
	return &Composer{
		accounts:     accounts,
		transactions: transactions,
		balances:     balances,
		users:        users,
	}
}

type HistoryRow struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	OtherParty   string    `json:"other_party"`
}

type History struct {
	Transactions []HistoryRow `json:"transactions"`
	Total        int          `json:"total"`
}

// GetHistory pages through the rows touching accountID, newest first. A
// non-positive limit means the default and larger limits are capped.
func (c *Composer) GetHistory(ctx context.Context, actor Actor, accountID string, limit, offset int) (History, error) {
	if _, err := c.authorize(ctx, actor, accountID); err != nil {
		return History{}, err
	}
	limit, offset = clampPage(limit, offset)
	rows, err := c.transactions.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return History{}, fmt.Errorf("list transactions: %w", err)
	}
	total, err := c.transactions.CountByAccount(ctx, accountID)
	if err != nil {
		return History{}, fmt.Errorf("count transactions: %w", err)
	}
	history := History{Transactions: make([]HistoryRow, 0, len(rows)), Total: total}
	for _, row := range rows {
		debit := row.IsFrom(accountID)
		history.Transactions = append(history.Transactions, HistoryRow{
			ID:           row.ID,
			Type:         row.TransactionType,
			Amount:       money.FormatSigned(row.Amount, debit),
			BalanceAfter: money.Format(row.BalanceAfter),
			Description:  row.Description,
			Status:       row.Status,
			CreatedAt:    row.CreatedAt,
			OtherParty:   otherParty(row, debit),
		})
	}
	return history, nil
}

type AccountInfo struct {
	AccountNumber  string  `json:"account_number"`
	AccountType    string  `json:"account_type"`
	AccountHolder  string  `json:"account_holder"`
	Email          string  `json:"email"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	CurrentBalance string  `json:"current_balance"`
	Status         string  `json:"status"`
}

type Period struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

type StatementSummary struct {
	OpeningBalance       string `json:"opening_balance"`
	TotalDeposits        string `json:"total_deposits"`
	TotalWithdrawals     string `json:"total_withdrawals"`
	ClosingBalance       string `json:"closing_balance"`
	PeriodClosingBalance string `json:"period_closing_balance"`
	TransactionCount     int    `json:"transaction_count"`
}

type StatementRow struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Debit       string    `json:"debit"`
	Credit      string    `json:"credit"`
	Balance     string    `json:"balance"`
	Reference   string    `json:"reference"`
}

type Statement struct {
	AccountInfo  AccountInfo      `json:"account_info"`
	Period       Period           `json:"period"`
	Summary      StatementSummary `json:"summary"`
	Transactions []StatementRow   `json:"transactions"`
}

// GetStatement lists the rows inside the optional inclusive bounds with
// period totals. The closing balance is always the current stored balance.
func (c *Composer) GetStatement(ctx context.Context, actor Actor, accountID string, start, end *time.Time) (Statement, error) {
	account, err := c.authorize(ctx, actor, accountID)
	if err != nil {
		return Statement{}, err
	}
	holder, err := c.users.GetByID(ctx, account.UserID)
	if err != nil {
		return Statement{}, fmt.Errorf("load account holder: %w", err)
	}
	rows, err := c.transactions.ListForStatement(ctx, accountID, start, end)
	if err != nil {
		return Statement{}, fmt.Errorf("list statement rows: %w", err)
	}

	deposits := decimal.Zero
	withdrawals := decimal.Zero
	lines := make([]StatementRow, 0, len(rows))
	for _, row := range rows {
		debit := row.IsFrom(accountID)
		line := StatementRow{
			Date:        row.CreatedAt,
			Description: row.Description,
			Type:        row.TransactionType,
			Debit:       money.Format(decimal.Zero),
			Credit:      money.Format(decimal.Zero),
			Balance:     money.Format(row.BalanceAfter),
			Reference:   row.ID,
		}
		if debit {
			withdrawals = withdrawals.Add(row.Amount)
			line.Debit = money.Format(row.Amount)
		}
		if row.IsTo(accountID) {
			deposits = deposits.Add(row.Amount)
			line.Credit = money.Format(row.Amount)
		}
		lines = append(lines, line)
	}

	opening, err := c.openingBalance(ctx, account, start, end, deposits, withdrawals)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		AccountInfo: AccountInfo{
			AccountNumber:  account.AccountNumber,
			AccountType:    account.AccountType,
			AccountHolder:  holder.FullName(),
			Email:          holder.Email,
			Phone:          holder.Phone,
			Address:        holder.Address,
			CurrentBalance: money.Format(account.Balance),
			Status:         account.Status,
		},
		Period: statementPeriod(rows, start, end),
		Summary: StatementSummary{
			OpeningBalance:       money.Format(opening),
			TotalDeposits:        money.Format(deposits),
			TotalWithdrawals:     money.Format(withdrawals),
			ClosingBalance:       money.Format(account.Balance),
			PeriodClosingBalance: money.Format(opening.Add(deposits).Sub(withdrawals)),
			TransactionCount:     len(rows),
		},
		Transactions: lines,
	}, nil
}

// openingBalance replays the ledger whenever a bound is given. Only an
// unbounded statement covers every row, so only then does current minus
// the period movement equal the opening balance.
func (c *Composer) openingBalance(ctx context.Context, account models.Account, start, end *time.Time, deposits, withdrawals decimal.Decimal) (decimal.Decimal, error) {
	if start == nil && end == nil {
		return account.Balance.Sub(deposits).Add(withdrawals), nil
	}
	var before time.Time
	if start != nil {
		before = *start
	}
	opening, err := c.balances.BalanceAsOf(ctx, account.ID, before)
	if err != nil {
		return decimal.Zero, fmt.Errorf("opening balance: %w", err)
	}
	return opening, nil
}

func (c *Composer) authorize(ctx context.Context, actor Actor, accountID string) (models.Account, error) {
	account, err := c.accounts.GetByID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !actor.Owns(account) {
		return models.Account{}, ErrForbidden
	}
	return account, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func otherParty(row models.TransactionView, debit bool) string {
	number := row.FromAccountNumber
	if debit {
		number = row.ToAccountNumber
	}
	if number == nil || *number == "" {
		return "N/A"
	}
	return "Account " + *number
}

// statementPeriod falls back to the oldest and newest row when a bound is
// missing, so the same rows always yield the same period.
func statementPeriod(rows []models.TransactionView, start, end *time.Time) Period {
	period := Period{From: start, To: end}
	if len(rows) == 0 {
		return period
	}
	if period.From == nil {
		oldest := rows[len(rows)-1].CreatedAt
		period.From = &oldest
	}
	if period.To == nil {
		newest := rows[0].CreatedAt
		period.To = &newest
	}
	return period
}
