package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that TxManager implements outbound.TxManager
var _ outbound.TxManager = (*TxManager)(nil)

// TxManager runs a function inside one transaction so that writes spanning
// several tables commit or roll back together.
//
// Usage:
//
//	txm, _ := postgres.NewTxManager(pool, logger)
//	err := txm.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    if _, err := tx.Exec(ctx, insertSnapshot, args...); err != nil {
//	        return err // triggers rollback
//	    }
//	    _, err := tx.Exec(ctx, insertWarning, args...)
//	    return err
//	})
type TxManager struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTxManager returns an error if the pool is nil.
func NewTxManager(pool *pgxpool.Pool, logger *slog.Logger) (*TxManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxManager{
		pool:   pool,
		logger: logger.With("component", "tx-manager"),
	}, nil
}

// WithTransaction executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn succeeds, the transaction is committed.
//
// The transaction is rolled back if:
//   - fn returns an error
//   - fn panics (panic is re-raised after rollback)
//   - commit fails
func (m *TxManager) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return m.WithTransactionOptions(ctx, pgx.TxOptions{}, fn)
}

// WithTransactionOptions executes fn within a transaction with custom options.
func (m *TxManager) WithTransactionOptions(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(tx, "panic")
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		m.rollback(tx, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rollback uses a fresh context so that a cancelled caller context still
// releases the connection.
func (m *TxManager) rollback(tx pgx.Tx, cause string) {
	if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		m.logger.Error("failed to rollback transaction", "error", err, "cause", cause)
	}
}
