package services

import (
	"time"

	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/money"
)

var minimumDeposits = map[string]decimal.Decimal{
	models.AccountTypeCurrent: decimal.Zero,
	models.AccountTypeSavings: decimal.NewFromInt(500),
	models.AccountTypeFD:      decimal.NewFromInt(1000),
}

// Actor is the principal a request runs as. Admins bypass ownership.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) Owns(account models.Account) bool {
	return a.IsAdmin || account.UserID == a.UserID
}

// Policy holds the business rules applied before any balance moves. Every
// check works on state that has already been read.
type Policy struct {
	loc *time.Location
}

func NewPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{loc: loc}
}

// Amount normalizes a movement amount, which must be positive with at most
// two decimals.
func (p Policy) Amount(amount decimal.Decimal) (decimal.Decimal, error) {
	normalized, err := money.Normalize(amount)
	if err != nil || !money.Positive(normalized) {
		return decimal.Zero, ErrInvalidAmount
	}
	return normalized, nil
}

func (p Policy) AccountType(accountType string) error {
	if _, ok := minimumDeposits[accountType]; !ok {
		return ErrInvalidAccountType
	}
	return nil
}

func (p Policy) MinimumDeposit(accountType string) decimal.Decimal {
	return minimumDeposits[accountType]
}

func (p Policy) InitialDeposit(accountType string, amount decimal.Decimal) (decimal.Decimal, error) {
	normalized, err := money.Normalize(amount)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if normalized.LessThan(p.MinimumDeposit(accountType)) || normalized.IsNegative() {
		return decimal.Zero, ErrBelowMinimumDeposit
	}
	return normalized, nil
}

func (p Policy) Active(account models.Account) error {
	if !account.IsActive() {
		return ErrInactiveAccount
	}
	return nil
}

func (p Policy) Funds(account models.Account, amount decimal.Decimal) error {
	if account.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// DailyLimit allows a transfer that lands exactly on the limit.
func (p Policy) DailyLimit(account models.Account, transferredToday, amount decimal.Decimal) error {
	if transferredToday.Add(amount).GreaterThan(account.DailyLimit) {
		return ErrDailyLimitExceeded
	}
	return nil
}

func (p Policy) Destination(source, destination models.Account) error {
	if !destination.IsActive() {
		return ErrDestinationInactive
	}
	if destination.ID == source.ID {
		return ErrSelfTransfer
	}
	return nil
}

// StatusChange allows any transition between known statuses except out of
// CLOSED.
func (p Policy) StatusChange(current, next string) error {
	switch next {
	case models.AccountStatusActive, models.AccountStatusFrozen, models.AccountStatusClosed:
	default:
		return ErrInvalidStatus
	}
	if current == models.AccountStatusClosed && next != models.AccountStatusClosed {
		return ErrInvalidStatus
	}
	return nil
}

func (p Policy) Limit(limit decimal.Decimal) (decimal.Decimal, error) {
	normalized, err := money.Normalize(limit)
	if err != nil || normalized.IsNegative() {
		return decimal.Zero, ErrInvalidLimit
	}
	return normalized, nil
}

// DayStart is local midnight of now in the ledger time zone.
func (p Policy) DayStart(now time.Time) time.Time {
	local := now.In(p.loc)
	year, month, day := local.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, p.loc)
}
