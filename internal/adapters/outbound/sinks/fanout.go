// Package sinks combines snapshot sinks.
package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that Fanout implements outbound.SnapshotSink
var _ outbound.SnapshotSink = (*Fanout)(nil)

// Fanout emits every result to each of its sinks in order. A failing sink does
// not stop the others; their errors are joined.
type Fanout struct {
	sinks []outbound.SnapshotSink
}

// NewFanout drops nil sinks. It returns an error if none remain.
func NewFanout(sinks ...outbound.SnapshotSink) (*Fanout, error) {
	var kept []outbound.SnapshotSink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	return &Fanout{sinks: kept}, nil
}

func (f *Fanout) Emit(ctx context.Context, result entity.RefreshResult) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Emit(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, even after a failure.
func (f *Fanout) Close() error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
