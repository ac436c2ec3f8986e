// snapshot_sink.go provides an in-memory implementation of SnapshotSink.
//
// This adapter stores every emitted refresh result in memory, for tests and
// for runs without persistence. It provides helper methods for inspecting
// results:
//   - Results(): all emitted results in order
//   - ResultsByStatus(): results with one status
//   - Latest(): the most recent result for a path
//   - SetOnEmit(): register a callback for assertions
//
// It also serves the last successful snapshot per path as a SnapshotReader,
// so a process without a database can still answer snapshot queries.
//
// All operations are thread-safe.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time checks that SnapshotSink implements the snapshot ports
var (
	_ outbound.SnapshotSink   = (*SnapshotSink)(nil)
	_ outbound.SnapshotReader = (*SnapshotSink)(nil)
)

// SnapshotSink is an in-memory implementation of the SnapshotSink port.
type SnapshotSink struct {
	mu        sync.RWMutex
	results   []entity.RefreshResult
	latest    map[string]entity.RefreshResult
	succeeded map[string]entity.RefreshResult
	closed    bool
	emitErr   error

	onEmit func(entity.RefreshResult)
}

// NewSnapshotSink creates a new in-memory snapshot sink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{
		latest:    make(map[string]entity.RefreshResult),
		succeeded: make(map[string]entity.RefreshResult),
	}
}

// Emit stores the result in memory.
func (s *SnapshotSink) Emit(ctx context.Context, result entity.RefreshResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("snapshot sink is closed")
	}
	if s.emitErr != nil {
		return s.emitErr
	}

	s.results = append(s.results, result)
	s.latest[result.Path] = result
	if result.Succeeded() {
		if prev, ok := s.succeeded[result.Path]; !ok || prev.Block() <= result.Block() {
			s.succeeded[result.Path] = result
		}
	}

	if s.onEmit != nil {
		s.onEmit(result)
	}
	return nil
}

// Close marks the sink as closed.
func (s *SnapshotSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Results returns every emitted result in emission order.
func (s *SnapshotSink) Results() []entity.RefreshResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.RefreshResult, len(s.results))
	copy(out, s.results)
	return out
}

// ResultsByStatus returns the emitted results with the given status.
func (s *SnapshotSink) ResultsByStatus(status entity.RefreshStatus) []entity.RefreshResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.RefreshResult
	for _, r := range s.results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recent result emitted for path.
func (s *SnapshotSink) Latest(path string) (entity.RefreshResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[path]
	return r, ok
}

// Len returns the number of emitted results.
func (s *SnapshotSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// SetOnEmit registers a callback invoked on every stored result.
func (s *SnapshotSink) SetOnEmit(fn func(entity.RefreshResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEmit = fn
}

// SetEmitError makes subsequent Emit calls fail with err. Pass nil to clear.
func (s *SnapshotSink) SetEmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitErr = err
}

// Clear removes all stored results.
func (s *SnapshotSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = nil
	s.latest = make(map[string]entity.RefreshResult)
	s.succeeded = make(map[string]entity.RefreshResult)
}

// LatestPoolSnapshot returns the successful pool snapshot of asset with the
// highest block.
func (s *SnapshotSink) LatestPoolSnapshot(ctx context.Context, asset common.Address) (*entity.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.succeeded[entity.PoolPath(asset)].Pool, nil
}

// LatestUserSnapshot returns the successful snapshot of user in asset with the
// highest block.
func (s *SnapshotSink) LatestUserSnapshot(ctx context.Context, user, asset common.Address) (*entity.UserSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.succeeded[entity.UserPath(user, asset)].User, nil
}
