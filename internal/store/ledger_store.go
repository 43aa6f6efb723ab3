package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerStore answers questions about balances by replaying the transaction
// log instead of reading the stored balance column.
type LedgerStore struct {
	db DB
}

type AccountReconciliation struct {
	ID               string          `db:"id" json:"id"`
	AccountNumber    string          `db:"account_number" json:"account_number"`
	UserID           string          `db:"user_id" json:"user_id"`
	StoredBalance    decimal.Decimal `db:"stored_balance" json:"stored_balance"`
	LedgerBalance    decimal.Decimal `db:"ledger_balance" json:"ledger_balance"`
	Difference       decimal.Decimal `db:"difference" json:"difference"`
	TransactionCount int             `db:"transaction_count" json:"transaction_count"`
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// BalanceAsOf is credits minus debits of completed rows strictly before the
// given instant.
func (s *LedgerStore) BalanceAsOf(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(CASE WHEN to_account_id = $1 THEN amount ELSE 0 END), 0)
		     - COALESCE(SUM(CASE WHEN from_account_id = $1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
		  AND status = 'COMPLETED'
		  AND created_at < $2
	`, accountID, before)
	return balance, err
}

// Reconcile compares each account's stored balance with its replayed ledger.
// An empty userID covers every account.
func (s *LedgerStore) Reconcile(ctx context.Context, userID string) ([]AccountReconciliation, error) {
	rows := []AccountReconciliation{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.account_number, a.user_id,
		       a.balance AS stored_balance,
		       COALESCE(l.credits, 0) - COALESCE(l.debits, 0) AS ledger_balance,
		       a.balance - (COALESCE(l.credits, 0) - COALESCE(l.debits, 0)) AS difference,
		       COALESCE(l.row_count, 0) AS transaction_count
		FROM accounts a
		LEFT JOIN LATERAL (
			SELECT SUM(CASE WHEN t.to_account_id = a.id THEN t.amount ELSE 0 END) AS credits,
			       SUM(CASE WHEN t.from_account_id = a.id THEN t.amount ELSE 0 END) AS debits,
			       COUNT(1) AS row_count
			FROM transactions t
			WHERE (t.from_account_id = a.id OR t.to_account_id = a.id)
			  AND t.status = 'COMPLETED'
		) l ON TRUE
		WHERE ($1 = '' OR a.user_id = $1)
		ORDER BY a.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
