package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel reads LOG_LEVEL ("debug", "info", "warn", "error", any case,
// with an optional offset such as "info+2"). It returns fallback when the
// variable is empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("LOG_LEVEL", ""))
	if raw == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
