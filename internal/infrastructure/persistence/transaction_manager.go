package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/recruitflow/backend/internal/domain/ports"
)

// MySQL error numbers the persistence layer reacts to
const (
	errDuplicateEntry      = 1062
	errLockWaitTimeout     = 1205
	errDeadlock            = 1213
	defaultDeadlockRetries = 3
)

// txContextKey is the key for storing transaction in context
type txContextKey struct{}

// querier is what repositories need from either *sql.DB or *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager handles database transactions with retry logic for deadlocks
type TransactionManager struct {
	db         *sql.DB
	maxRetries int
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

var _ ports.Transactor = (*TransactionManager)(nil)

// NewTransactionManager creates a new TransactionManager
func NewTransactionManager(db *sql.DB, logger *slog.Logger) *TransactionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionManager{
		db:         db,
		maxRetries: defaultDeadlockRetries,
		logger:     logger,
		backoff: func(attempt int) time.Duration {
			return time.Millisecond * time.Duration(100*(1<<uint(attempt)))
		},
	}
}

// WithinTransaction runs fn in a transaction carried by ctx. A ctx that
// already holds a transaction joins it. Deadlocks and lock wait timeouts
// retry the whole function with exponential backoff.
func (tm *TransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ExtractTx(ctx) != nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 0; attempt < tm.maxRetries; attempt++ {
		err := tm.withTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isDeadlock(err) {
			return err
		}
		tm.logger.Warn("transaction deadlocked, retrying", "attempt", attempt+1, "error", err)
		if attempt < tm.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(tm.backoff(attempt)):
			}
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", tm.maxRetries, lastErr)
}

func (tm *TransactionManager) withTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(InjectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InjectTx injects a transaction into the context
func InjectTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// ExtractTx extracts a transaction from the context
func ExtractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// conn returns the transaction in ctx, or db outside one.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// isDeadlock checks if an error is a deadlock error.
// - 1213: Deadlock found when trying to get lock
// - 1205: Lock wait timeout exceeded
func isDeadlock(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock wait timeout")
}

// isDuplicate reports a unique-key violation.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}
