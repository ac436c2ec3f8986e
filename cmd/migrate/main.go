// Package main applies the embedded database migrations.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/archon-research/stl/pool-state/db/migrations"
	"github.com/archon-research/stl/pool-state/db/migrator"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl/pool-state/internal/pkg/env"
)

func main() {
	dbURL := flag.String("db", "", "PostgreSQL connection URL")
	list := flag.Bool("list", false, "List applied migrations and exit")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	if *dbURL == "" {
		*dbURL = env.Get("DATABASE_URL", "")
	}
	if *dbURL == "" {
		logger.Error("database URL not provided (use -db flag or DATABASE_URL env var)")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(*dbURL))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	m := migrator.New(pool, migrations.FS, logger)

	if *list {
		applied, err := m.ListApplied(ctx)
		if err != nil {
			logger.Error("failed to list migrations", "error", err)
			os.Exit(1)
		}
		for _, name := range applied {
			logger.Info("applied", "migration", name)
		}
		return
	}

	applied, err := m.ApplyAll(ctx)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("all migrations up to date", "applied", len(applied))
}
