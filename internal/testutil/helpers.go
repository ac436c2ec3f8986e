package testutil

import "log/slog"

// DiscardLogger returns a logger for tests that assert on behaviour rather
// than log output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
