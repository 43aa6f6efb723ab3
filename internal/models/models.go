package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeSavings = "SAVINGS"
	AccountTypeCurrent = "CURRENT"
	AccountTypeFD      = "FD"
)

const (
	AccountStatusActive = "ACTIVE"
	AccountStatusFrozen = "FROZEN"
	AccountStatusClosed = "CLOSED"
)

const (
	TransactionTypeDeposit    = "DEPOSIT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
	TransactionTypeTransfer   = "TRANSFER"
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

const (
	KycStatusPending  = "PENDING"
	KycStatusVerified = "VERIFIED"
	KycStatusRejected = "REJECTED"
)

type User struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	DateOfBirth        *string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	IDType             *string    `db:"id_type" json:"id_type,omitempty"`
	IDNumber           *string    `db:"id_number" json:"id_number,omitempty"`
	KycStatus          string     `db:"kyc_status" json:"kyc_status"`
	DocumentURL        *string    `db:"document_url" json:"document_url,omitempty"`
	KycRejectionReason *string    `db:"kyc_rejection_reason" json:"kyc_rejection_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at" json:"-"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Account struct {
	ID            string          `db:"id" json:"id"`
	AccountNumber string          `db:"account_number" json:"account_number"`
	AccountType   string          `db:"account_type" json:"account_type"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	Status        string          `db:"status" json:"status"`
	DailyLimit    decimal.Decimal `db:"daily_limit" json:"daily_limit"`
	UserID        string          `db:"user_id" json:"user_id"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

func (a Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

type Transaction struct {
	ID              string          `db:"id" json:"id"`
	FromAccountID   *string         `db:"from_account_id" json:"from_account_id,omitempty"`
	ToAccountID     *string         `db:"to_account_id" json:"to_account_id,omitempty"`
	TransactionType string          `db:"transaction_type" json:"transaction_type"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter    decimal.Decimal `db:"balance_after" json:"balance_after"`
	Description     string          `db:"description" json:"description"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// TransactionView is a transaction joined with the account numbers of both
// sides, as read back for history and statements.
type TransactionView struct {
	Transaction
	FromAccountNumber *string `db:"from_account_number" json:"from_account_number,omitempty"`
	ToAccountNumber   *string `db:"to_account_number" json:"to_account_number,omitempty"`
}

func (t Transaction) IsFrom(accountID string) bool {
	return t.FromAccountID != nil && *t.FromAccountID == accountID
}

func (t Transaction) IsTo(accountID string) bool {
	return t.ToAccountID != nil && *t.ToAccountID == accountID
}
