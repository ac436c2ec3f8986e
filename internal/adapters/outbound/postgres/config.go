package postgres

import (
	"log/slog"
	"time"
)

// Config holds configuration for SnapshotRepository.
type Config struct {
	// WriteTimeout bounds one Emit. Emit runs on the refresh path, so a
	// stalled database must not hold a refresh for long.
	// Default: 5 seconds
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns a Config with default values.
func ConfigDefaults() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}
