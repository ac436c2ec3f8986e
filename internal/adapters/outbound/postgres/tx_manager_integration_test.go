//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl/pool-state/internal/testutil"
)

func setupTxManagerTest(t *testing.T) (*TxManager, *pgxpool.Pool) {
	t.Helper()

	pool, _, cleanup := testutil.SetupPostgres(t)
	t.Cleanup(cleanup)

	txm, err := NewTxManager(pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("failed to create TxManager: %v", err)
	}
	return txm, pool
}

func insertWarningRow(ctx context.Context, tx pgx.Tx, path string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO refresh_warnings (path, status, message) VALUES ($1, 'failed', 'test')`, path)
	return err
}

func countWarnings(t *testing.T, pool *pgxpool.Pool, pathPattern string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM refresh_warnings WHERE path LIKE $1`, pathPattern).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count warnings: %v", err)
	}
	return count
}

func TestTxManager_WithTransaction(t *testing.T) {
	txm, pool := setupTxManagerTest(t)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := txm.WithTransaction(ctx, func(tx pgx.Tx) error {
			for i := 1; i <= 3; i++ {
				if err := insertWarningRow(ctx, tx, fmt.Sprintf("commit/%d", i)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTransaction failed: %v", err)
		}
		if got := countWarnings(t, pool, "commit/%"); got != 3 {
			t.Errorf("expected 3 rows, got %d", got)
		}
	})

	t.Run("error rolls back every statement", func(t *testing.T) {
		testErr := errors.New("intentional failure")
		err := txm.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := insertWarningRow(ctx, tx, "rollback/1"); err != nil {
				return err
			}
			if err := insertWarningRow(ctx, tx, "rollback/2"); err != nil {
				return err
			}
			return testErr
		})
		if !errors.Is(err, testErr) {
			t.Fatalf("expected testErr, got: %v", err)
		}
		if got := countWarnings(t, pool, "rollback/%"); got != 0 {
			t.Errorf("expected 0 rows after rollback, got %d", got)
		}
	})

	t.Run("constraint violation rolls back", func(t *testing.T) {
		err := txm.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := insertWarningRow(ctx, tx, "violation/1"); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO refresh_warnings (path, status, message) VALUES ('violation/2', 'ok', 'x')`)
			return err
		})
		if err == nil {
			t.Fatal("expected check constraint error")
		}
		if got := countWarnings(t, pool, "violation/%"); got != 0 {
			t.Errorf("expected 0 rows after rollback, got %d", got)
		}
	})
}

func TestTxManager_WithTransaction_PanicRollback(t *testing.T) {
	txm, pool := setupTxManagerTest(t)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to be re-raised")
			}
		}()
		_ = txm.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := insertWarningRow(ctx, tx, "panic/1"); err != nil {
				return err
			}
			panic("intentional panic")
		})
	}()

	if got := countWarnings(t, pool, "panic/%"); got != 0 {
		t.Errorf("expected 0 rows after panic, got %d", got)
	}
}

func TestTxManager_WithTransactionOptions_ReadOnly(t *testing.T) {
	txm, _ := setupTxManagerTest(t)
	ctx := context.Background()

	var count int
	err := txm.WithTransactionOptions(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM refresh_warnings").Scan(&count)
	})
	if err != nil {
		t.Fatalf("read-only transaction failed: %v", err)
	}

	err = txm.WithTransactionOptions(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return insertWarningRow(ctx, tx, "readonly/1")
	})
	if err == nil {
		t.Fatal("expected error for write in read-only transaction")
	}
}

func TestTxManager_ContextCancellation(t *testing.T) {
	txm, _ := setupTxManagerTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
