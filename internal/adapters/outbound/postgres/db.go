// Package postgres persists refresh results in PostgreSQL. Amounts are stored
// as NUMERIC so that 256-bit integers round-trip exactly.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConfig sizes the connection pool. Zero fields keep the pgx defaults.
type DBConfig struct {
	// URL is a libpq style connection string or postgres:// URL.
	URL string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// StatementTimeout is set as the session statement_timeout, so a stuck
	// snapshot write fails on the server as well as in the client.
	StatementTimeout time.Duration

	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
}

// DefaultDBConfig suits a single pool-state task: emits are serialized per
// snapshot path, so a handful of connections is plenty.
func DefaultDBConfig(url string) DBConfig {
	return DBConfig{
		URL:              url,
		MaxConns:         8,
		MinConns:         1,
		MaxConnLifetime:  30 * time.Minute,
		MaxConnIdleTime:  5 * time.Minute,
		StatementTimeout: 10 * time.Second,
		ApplicationName:  "pool-state",
	}
}

// OpenPool builds a pool from cfg and pings it. The caller closes the pool.
func OpenPool(ctx context.Context, cfg DBConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	applyDBConfig(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func applyDBConfig(poolConfig *pgxpool.Config, cfg DBConfig) {
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
}
