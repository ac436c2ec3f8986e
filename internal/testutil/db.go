package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/stl/pool-state/db/migrations"
	"github.com/archon-research/stl/pool-state/db/migrator"
)

// StartPostgres creates a PostgreSQL container and returns the DSN and a
// cleanup function. No pool connection or migrations are applied.
func StartPostgres(t *testing.T) (dsn string, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start container: %v", err)
	}

	dsn, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup = func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return dsn, cleanup
}

// ConnectPool creates a pgxpool.Pool for the given DSN with retry logic.
func ConnectPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for i := 0; i < 30; i++ {
		if pool.Ping(ctx) == nil {
			return pool
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatal("timed out waiting for database connection")
	return nil
}

// RunMigrations applies the embedded SQL migrations.
func RunMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	m := migrator.New(pool, migrations.FS, DiscardLogger())
	if _, err := m.ApplyAll(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
}

// SetupPostgres is the composed helper: container + pool + migrations.
// Most integration tests use this.
func SetupPostgres(t *testing.T) (pool *pgxpool.Pool, dsn string, cleanup func()) {
	t.Helper()

	dsn, containerCleanup := StartPostgres(t)
	pool = ConnectPool(t, dsn)
	RunMigrations(t, pool)

	cleanup = func() {
		pool.Close()
		containerCleanup()
	}
	return pool, dsn, cleanup
}
