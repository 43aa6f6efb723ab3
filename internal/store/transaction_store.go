package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartbank/internal/models"
)

// ClientRequestConstraint guards replays of the same client request id.
const ClientRequestConstraint = "transactions_client_request_id_key"

const transactionViewSelect = `
	SELECT t.id, t.from_account_id, t.to_account_id, t.transaction_type, t.amount, t.balance_after,
	       t.description, t.status, t.created_at,
	       fa.account_number AS from_account_number,
	       ta.account_number AS to_account_number
	FROM transactions t
	LEFT JOIN accounts fa ON fa.id = t.from_account_id
	LEFT JOIN accounts ta ON ta.id = t.to_account_id
`

type TransactionStore struct {
	db DB
}

type TransactionInput struct {
	ID              string
	FromAccountID   *string
	ToAccountID     *string
	Type            string
	Amount          decimal.Decimal
	BalanceAfter    decimal.Decimal
	Description     string
	Status          string
	ClientRequestID *string
}

type TodayActivity struct {
	Count  int             `db:"count" json:"count"`
	Volume decimal.Decimal `db:"volume" json:"volume"`
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Append inserts a new transaction row and returns it as stored. Rows are
// never updated afterwards.
func (s *TransactionStore) Append(ctx context.Context, tx Getter, input TransactionInput) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		INSERT INTO transactions (id, from_account_id, to_account_id, transaction_type, amount, balance_after, description, status, client_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, from_account_id, to_account_id, transaction_type, amount, balance_after, description, status, created_at
	`,
		input.ID, input.FromAccountID, input.ToAccountID, input.Type, input.Amount,
		input.BalanceAfter, input.Description, input.Status, input.ClientRequestID,
	)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// SumCompletedTransfers totals completed outgoing transfers from accountID
// created at or after since.
func (s *TransactionStore) SumCompletedTransfers(ctx context.Context, q Getter, accountID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE from_account_id = $1
		  AND transaction_type = $2
		  AND status = $3
		  AND created_at >= $4
	`, accountID, models.TransactionTypeTransfer, models.TransactionStatusCompleted, since)
	return sum, err
}

func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionView, error) {
	rows := []models.TransactionView{}
	err := s.db.SelectContext(ctx, &rows, transactionViewSelect+`
		WHERE t.from_account_id = $1 OR t.to_account_id = $1
		ORDER BY t.created_at DESC, t.seq DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
	`, accountID)
	return count, err
}

// ListForStatement returns every row touching accountID with created_at
// inside the optional inclusive bounds, newest first.
func (s *TransactionStore) ListForStatement(ctx context.Context, accountID string, start, end *time.Time) ([]models.TransactionView, error) {
	var query strings.Builder
	query.WriteString(transactionViewSelect)
	query.WriteString(" WHERE (t.from_account_id = $1 OR t.to_account_id = $1)")
	args := []any{accountID}
	if start != nil {
		args = append(args, *start)
		query.WriteString(" AND t.created_at >= $" + strconv.Itoa(len(args)))
	}
	if end != nil {
		args = append(args, *end)
		query.WriteString(" AND t.created_at <= $" + strconv.Itoa(len(args)))
	}
	query.WriteString(" ORDER BY t.created_at DESC, t.seq DESC")

	rows := []models.TransactionView{}
	if err := s.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]models.TransactionView, error) {
	rows := []models.TransactionView{}
	err := s.db.SelectContext(ctx, &rows, transactionViewSelect+`
		ORDER BY t.created_at DESC, t.seq DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM transactions`)
	return count, err
}

// TodayActivity counts every row since dayStart and sums completed volume.
func (s *TransactionStore) TodayActivity(ctx context.Context, dayStart time.Time) (TodayActivity, error) {
	var activity TodayActivity
	err := s.db.GetContext(ctx, &activity, `
		SELECT COUNT(1) AS count,
		       COALESCE(SUM(amount) FILTER (WHERE status = $2), 0) AS volume
		FROM transactions
		WHERE created_at >= $1
	`, dayStart, models.TransactionStatusCompleted)
	return activity, err
}
