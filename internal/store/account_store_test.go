package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smartbank/internal/models"
)

func TestAccountStoreCreate(t *testing.T) {
	ctx := context.Background()
	stored := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "INSERT INTO accounts") || !strings.Contains(query, "ON CONFLICT (account_number) DO NOTHING") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "RETURNING created_at") {
				t.Fatalf("creation time must come from the row: %s", query)
			}
			if len(args) != 7 || args[0] != "acc-1" || args[1] != "0000000000000000042" || args[2] != models.AccountTypeSavings {
				t.Fatalf("unexpected args: %#v", args)
			}
			if args[6] != "user-1" {
				t.Fatalf("unexpected user arg: %#v", args[6])
			}
			*dest.(*time.Time) = stored
			return nil
		},
	}
	store := NewAccountStore(stubDB{})
	account, inserted, err := store.Create(ctx, getter, models.Account{
		ID:            "acc-1",
		AccountNumber: "0000000000000000042",
		AccountType:   models.AccountTypeSavings,
		Balance:       decimal.RequireFromString("500"),
		Status:        models.AccountStatusActive,
		DailyLimit:    decimal.RequireFromString("50000"),
		UserID:        "user-1",
		CreatedAt:     stored.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert to be reported")
	}
	if !account.CreatedAt.Equal(stored) || account.AccountNumber != "0000000000000000042" {
		t.Fatalf("expected stored creation time, got %#v", account)
	}
}

func TestAccountStoreCreateReportsNumberCollision(t *testing.T) {
	getter := stubGetter{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	}
	_, inserted, err := NewAccountStore(stubDB{}).Create(context.Background(), getter, models.Account{ID: "acc-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("expected collision to be reported as not inserted")
	}
}

func TestAccountStoreCreatePassesErrorsThrough(t *testing.T) {
	failure := errors.New("connection reset")
	getter := stubGetter{
		getFn: func(context.Context, any, string, ...any) error { return failure },
	}
	if _, _, err := NewAccountStore(stubDB{}).Create(context.Background(), getter, models.Account{ID: "acc-1"}); !errors.Is(err, failure) {
		t.Fatalf("expected failure to surface, got %v", err)
	}
}

func TestAccountStoreGetForUpdateLocksRow(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock: %s", query)
			}
			if len(args) != 1 || args[0] != "acc-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.Account) = models.Account{ID: "acc-1", Balance: decimal.RequireFromString("10")}
			return nil
		},
	}
	row, err := NewAccountStore(stubDB{}).GetForUpdate(context.Background(), getter, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.ID != "acc-1" {
		t.Fatalf("unexpected row: %#v", row)
	}
}

func TestAccountStoreGetByNumberPropagatesNoRows(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE account_number = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			return sql.ErrNoRows
		},
	}
	_, err := NewAccountStore(stubDB{}).GetByNumber(context.Background(), getter, "123")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAccountStoreListByUserNewestFirst(t *testing.T) {
	store := NewAccountStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "ORDER BY created_at DESC") {
				t.Fatalf("expected creation-descending order: %s", query)
			}
			if len(args) != 1 || args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.Account) = []models.Account{{ID: "acc-2"}, {ID: "acc-1"}}
			return nil
		},
	})
	rows, err := store.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "acc-2" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestAccountStoreExistsForUserAndType(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if len(args) != 2 || args[0] != "user-1" || args[1] != models.AccountTypeFD {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*bool) = true
			return nil
		},
	}
	exists, err := NewAccountStore(stubDB{}).ExistsForUserAndType(context.Background(), getter, "user-1", models.AccountTypeFD)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected account to exist")
	}
}

func TestAccountStoreUpdateBalance(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "SET balance = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || !args[0].(decimal.Decimal).Equal(decimal.RequireFromString("400")) || args[1] != "acc-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	if err := NewAccountStore(stubDB{}).UpdateBalance(context.Background(), execer, "acc-1", decimal.RequireFromString("400")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreUpdateStatusMissingAccount(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	err := NewAccountStore(stubDB{}).UpdateStatus(context.Background(), execer, "missing", models.AccountStatusFrozen)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAccountStoreListAllWithUsers(t *testing.T) {
	store := NewAccountStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "JOIN users u") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != 50 || args[1] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]AccountWithUser) = []AccountWithUser{{Account: models.Account{ID: "acc-1"}, Email: "a@b.c"}}
			return nil
		},
	})
	rows, err := store.ListAllWithUsers(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Email != "a@b.c" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
