// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// MetricsRecorder records refresh outcomes without tying services to a
// telemetry backend.
type MetricsRecorder interface {
	// RecordRefresh records one refresh of kind ("pool" or "user") finishing
	// with status ("ok", "degraded" or "failed") after duration.
	RecordRefresh(ctx context.Context, kind, status string, duration time.Duration)

	// RecordEventsIngested records how many new events a tracker inserted.
	RecordEventsIngested(ctx context.Context, tracker string, count int)
}
