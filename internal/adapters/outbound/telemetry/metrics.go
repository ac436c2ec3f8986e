package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

const meterName = "github.com/archon-research/stl/pool-state"

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	refreshDuration metric.Float64Histogram
	refreshErrors   metric.Int64Counter
	eventsIngested  metric.Int64Counter
}

// NewMetrics creates the refresh instruments on provider. A nil provider
// uses the global one set by InitMetrics.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"pool_state.refresh.duration",
		metric.WithDescription("Time taken by one pool or user refresh"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool_state.refresh.duration histogram: %w", err)
	}

	refreshErrors, err := meter.Int64Counter(
		"pool_state.refresh.errors",
		metric.WithDescription("Refreshes that produced no snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool_state.refresh.errors counter: %w", err)
	}

	events, err := meter.Int64Counter(
		"pool_state.events.ingested",
		metric.WithDescription("New events inserted into tracker ledgers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool_state.events.ingested counter: %w", err)
	}

	return &Metrics{
		refreshDuration: duration,
		refreshErrors:   refreshErrors,
		eventsIngested:  events,
	}, nil
}

// RecordRefresh records the duration of every refresh and counts failures.
func (m *Metrics) RecordRefresh(ctx context.Context, kind, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.refreshDuration.Record(ctx, duration.Seconds(), attrs)
	if status == "failed" {
		m.refreshErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordEventsIngested adds count to the tracker's ingested events.
func (m *Metrics) RecordEventsIngested(ctx context.Context, tracker string, count int) {
	if count <= 0 {
		return
	}
	m.eventsIngested.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tracker", tracker)))
}
