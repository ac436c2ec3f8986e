// Package migrator applies SQL migrations in filename order and records a
// checksum per file so that an edited migration is detected instead of
// silently skipped.
package migrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrChecksumMismatch is returned when an applied migration file changed.
var ErrChecksumMismatch = errors.New("migration has been modified")

type Migrator struct {
	pool   *pgxpool.Pool
	files  fs.FS
	logger *slog.Logger
}

// New returns a migrator applying the *.sql files at the root of files.
func New(pool *pgxpool.Pool, files fs.FS, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		pool:   pool,
		files:  files,
		logger: logger.With("component", "migrator"),
	}
}

// ApplyAll applies every pending migration and verifies the checksum of every
// applied one. It returns the filenames it applied.
func (m *Migrator) ApplyAll(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := m.migrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get migration files: %w", err)
	}

	var newlyApplied []string
	for _, filename := range files {
		content, err := fs.ReadFile(m.files, filename)
		if err != nil {
			return newlyApplied, fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		checksum := fmt.Sprintf("%x", sha256.Sum256(content))

		if stored, ok := applied[filename]; ok {
			if stored != checksum {
				return newlyApplied, fmt.Errorf("%s: %w (expected checksum %s, got %s)", filename, ErrChecksumMismatch, stored, checksum)
			}
			continue
		}

		if err := m.applyMigration(ctx, filename, string(content), checksum); err != nil {
			return newlyApplied, fmt.Errorf("failed to apply migration %s: %w", filename, err)
		}
		newlyApplied = append(newlyApplied, filename)
	}

	return newlyApplied, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			filename   TEXT        PRIMARY KEY,
			checksum   TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (m *Migrator) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename, checksum FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}
	return applied, rows.Err()
}

func (m *Migrator) migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) applyMigration(ctx context.Context, filename, content, checksum string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Warn("failed to rollback migration", "filename", filename, "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO migrations (filename, checksum) VALUES ($1, $2)",
		filename, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.Info("applied migration", "filename", filename, "checksum", checksum[:8])
	return nil
}

// ListApplied returns applied migrations in the order they were applied.
func (m *Migrator) ListApplied(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		"SELECT filename FROM migrations ORDER BY applied_at ASC, filename ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []string
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		migrations = append(migrations, filename)
	}
	return migrations, rows.Err()
}
