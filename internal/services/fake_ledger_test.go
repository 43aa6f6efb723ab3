package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"smartbank/internal/models"
	"smartbank/internal/store"
	"smartbank/internal/websocket"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type storedTransaction struct {
	row       models.Transaction
	seq       int
	requestID *string
}

// memLedger is an in-memory ledger. A unit of work holds unit for its whole
// run, which stands in for row locks, and restores a snapshot when fn fails.
type memLedger struct {
	unit sync.Mutex
	mu   sync.Mutex

	accounts     map[string]models.Account
	transactions []storedTransaction
	audits       []string
	seq          int
	now          func() time.Time

	appendErr  error
	updateErrs map[string]error
	commits    int
	rollbacks  int
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts:   map[string]models.Account{},
		updateErrs: map[string]error{},
		now:        func() time.Time { return testNow },
	}
}

func (m *memLedger) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	m.unit.Lock()
	defer m.unit.Unlock()

	m.mu.Lock()
	accounts := make(map[string]models.Account, len(m.accounts))
	for id, account := range m.accounts {
		accounts[id] = account
	}
	transactions := append([]storedTransaction(nil), m.transactions...)
	audits := append([]string(nil), m.audits...)
	seq := m.seq
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.accounts, m.transactions, m.audits, m.seq = accounts, transactions, audits, seq
		m.rollbacks++
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

func (m *memLedger) put(account models.Account) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}
	if account.DailyLimit.IsZero() {
		account.DailyLimit = decimal.NewFromInt(50000)
	}
	if account.AccountType == "" {
		account.AccountType = models.AccountTypeSavings
	}
	m.accounts[account.ID] = account
	return account
}

func (m *memLedger) account(id string) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

func (m *memLedger) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memLedger) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m *memLedger) GetByNumber(ctx context.Context, q store.Getter, accountNumber string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.AccountNumber == accountNumber {
			return account, nil
		}
	}
	return models.Account{}, sql.ErrNoRows
}

func (m *memLedger) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error) {
	return m.GetByID(ctx, accountID)
}

func (m *memLedger) ExistsForUserAndType(ctx context.Context, q store.Getter, userID string, accountType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.UserID == userID && account.AccountType == accountType {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) Create(ctx context.Context, tx store.Getter, account models.Account) (models.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.AccountNumber == account.AccountNumber {
			return models.Account{}, false, nil
		}
		if existing.UserID == account.UserID && existing.AccountType == account.AccountType {
			return models.Account{}, false, &pq.Error{Code: "23505", Constraint: store.AccountTypeConstraint}
		}
	}
	account.CreatedAt = m.now()
	m.accounts[account.ID] = account
	return account, true, nil
}

func (m *memLedger) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErrs[accountID]; err != nil {
		return err
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	if balance.IsNegative() {
		return &pq.Error{Code: "23514", Message: "balance check violated"}
	}
	account.Balance = balance
	m.accounts[accountID] = account
	return nil
}

func (m *memLedger) UpdateStatus(ctx context.Context, tx store.Execer, accountID string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	account.Status = status
	m.accounts[accountID] = account
	return nil
}

func (m *memLedger) UpdateDailyLimit(ctx context.Context, tx store.Execer, accountID string, limit decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	account.DailyLimit = limit
	m.accounts[accountID] = account
	return nil
}

func (m *memLedger) Append(ctx context.Context, tx store.Getter, input store.TransactionInput) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return models.Transaction{}, m.appendErr
	}
	if input.ClientRequestID != nil {
		for _, existing := range m.transactions {
			if existing.requestID != nil && *existing.requestID == *input.ClientRequestID {
				return models.Transaction{}, &pq.Error{Code: "23505", Constraint: store.ClientRequestConstraint}
			}
		}
	}
	if !input.Amount.IsPositive() {
		return models.Transaction{}, &pq.Error{Code: "23514", Message: "amount check violated"}
	}
	m.seq++
	row := models.Transaction{
		ID:              input.ID,
		FromAccountID:   input.FromAccountID,
		ToAccountID:     input.ToAccountID,
		TransactionType: input.Type,
		Amount:          input.Amount,
		BalanceAfter:    input.BalanceAfter,
		Description:     input.Description,
		Status:          input.Status,
		CreatedAt:       m.now(),
	}
	m.transactions = append(m.transactions, storedTransaction{row: row, seq: m.seq, requestID: input.ClientRequestID})
	return row, nil
}

// seed appends a completed row directly, bypassing the service.
func (m *memLedger) seed(row models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if row.Status == "" {
		row.Status = models.TransactionStatusCompleted
	}
	if row.ID == "" {
		row.ID = fmt.Sprintf("seed-%d", m.seq)
	}
	m.transactions = append(m.transactions, storedTransaction{row: row, seq: m.seq})
}

func (m *memLedger) SumCompletedTransfers(ctx context.Context, q store.Getter, accountID string, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, stored := range m.transactions {
		row := stored.row
		if row.IsFrom(accountID) && row.TransactionType == models.TransactionTypeTransfer &&
			row.Status == models.TransactionStatusCompleted && !row.CreatedAt.Before(since) {
			sum = sum.Add(row.Amount)
		}
	}
	return sum, nil
}

func (m *memLedger) views(accountID string, keep func(models.Transaction) bool) []models.TransactionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []storedTransaction{}
	for _, stored := range m.transactions {
		if (stored.row.IsFrom(accountID) || stored.row.IsTo(accountID)) && keep(stored.row) {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].row.CreatedAt.Equal(matched[j].row.CreatedAt) {
			return matched[i].row.CreatedAt.After(matched[j].row.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	views := make([]models.TransactionView, 0, len(matched))
	for _, stored := range matched {
		view := models.TransactionView{Transaction: stored.row}
		if stored.row.FromAccountID != nil {
			number := m.accounts[*stored.row.FromAccountID].AccountNumber
			view.FromAccountNumber = &number
		}
		if stored.row.ToAccountID != nil {
			number := m.accounts[*stored.row.ToAccountID].AccountNumber
			view.ToAccountNumber = &number
		}
		views = append(views, view)
	}
	return views
}

func (m *memLedger) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.TransactionView, error) {
	views := m.views(accountID, func(models.Transaction) bool { return true })
	if offset >= len(views) {
		return []models.TransactionView{}, nil
	}
	end := offset + limit
	if end > len(views) {
		end = len(views)
	}
	return views[offset:end], nil
}

func (m *memLedger) CountByAccount(ctx context.Context, accountID string) (int, error) {
	return len(m.views(accountID, func(models.Transaction) bool { return true })), nil
}

func (m *memLedger) ListForStatement(ctx context.Context, accountID string, start, end *time.Time) ([]models.TransactionView, error) {
	return m.views(accountID, func(row models.Transaction) bool {
		if start != nil && row.CreatedAt.Before(*start) {
			return false
		}
		if end != nil && row.CreatedAt.After(*end) {
			return false
		}
		return true
	}), nil
}

func (m *memLedger) BalanceAsOf(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, view := range m.views(accountID, func(row models.Transaction) bool { return row.CreatedAt.Before(before) }) {
		if view.IsTo(accountID) {
			balance = balance.Add(view.Amount)
		}
		if view.IsFrom(accountID) {
			balance = balance.Sub(view.Amount)
		}
	}
	return balance, nil
}

func (m *memLedger) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, action)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers(users ...models.User) *memUsers {
	fake := &memUsers{users: map[string]models.User{}}
	for _, user := range users {
		fake.users[user.ID] = user
	}
	return fake
}

func (m *memUsers) GetByID(ctx context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memUsers) SubmitKycDocument(ctx context.Context, tx store.Execer, userID, documentURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.DocumentURL = &documentURL
	user.KycStatus = models.KycStatusPending
	user.KycRejectionReason = nil
	m.users[userID] = user
	return nil
}

func (m *memUsers) SetKycStatus(ctx context.Context, tx store.Execer, userID, status string, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.KycStatus = status
	user.KycRejectionReason = reason
	m.users[userID] = user
	return nil
}

func (m *memUsers) ListPendingKyc(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := []models.User{}
	for _, user := range m.users {
		if user.KycStatus == models.KycStatusPending && user.DocumentURL != nil {
			pending = append(pending, user)
		}
	}
	return pending, nil
}

type sequenceNumbers struct {
	mu      sync.Mutex
	numbers []string
	next    int
}

func (s *sequenceNumbers) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next < len(s.numbers) {
		number := s.numbers[s.next]
		s.next++
		return number
	}
	s.next++
	return fmt.Sprintf("%019d", s.next)
}

type stubHub struct {
	mu    sync.Mutex
	calls map[string][]websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string][]websocket.BalanceUpdate{}
	}
	s.calls[userID] = append(s.calls[userID], update)
	return 1
}
