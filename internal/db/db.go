package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"

	defaultMaxAttempts = 5
)

var ErrRetryLimit = errors.New("transaction retry limit exceeded")

// TxRunner executes fn as one unit of work. Either every write made through
// the *sqlx.Tx becomes visible or none does.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db          *sqlx.DB
	log         *zap.Logger
	maxAttempts int
}

func NewTxRunner(db *sqlx.DB, log *zap.Logger) SQLXTxRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return SQLXTxRunner{db: db, log: log, maxAttempts: defaultMaxAttempts}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return withRetry(ctx, r.db, r.log, r.maxAttempts, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn at SERIALIZABLE isolation, retrying serialization failures
// and deadlocks a bounded number of times.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return withRetry(ctx, db, zap.NewNop(), defaultMaxAttempts, fn)
}

func withRetry(ctx context.Context, db *sqlx.DB, log *zap.Logger, maxAttempts int, fn func(*sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		log.Debug("retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		if err := sleepWithBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	log.Warn("transaction retry limit exceeded",
		zap.Int("attempts", maxAttempts),
		zap.String("code", pgCode(lastErr)),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%w: %s %v", ErrRetryLimit, pgCode(lastErr), lastErr)
}

func runOnce(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func IsRetryable(err error) bool {
	code := pgCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique violation. When
// constraint is non-empty the violated constraint must match it.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}
	return string(pqErr.Code)
}

func sleepWithBackoff(ctx context.Context, attempt int) error {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
