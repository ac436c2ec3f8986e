package pool_state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/eventledger"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// liquidityFilter narrows liquidity event queries. A zero address matches any.
type liquidityFilter struct {
	asset common.Address
	user  common.Address
}

func (f liquidityFilter) indexed() map[string]common.Address {
	indexed := make(map[string]common.Address, 2)
	if f.asset != (common.Address{}) {
		indexed["l1Token"] = f.asset
	}
	if f.user != (common.Address{}) {
		indexed["liquidityProvider"] = f.user
	}
	return indexed
}

// covers reports whether events matching other are a subset of those matching f.
func (f liquidityFilter) covers(other liquidityFilter) bool {
	return (f.asset == common.Address{} || f.asset == other.asset) &&
		(f.user == common.Address{} || f.user == other.user)
}

// poolEventTracker accumulates the hub pool's LiquidityAdded and
// LiquidityRemoved events and reduces them to a TokenEventState.
//
// Each filter remembers the next block it has not scanned. Range queries run
// without holding the lock; inserts are idempotent so overlapping scans from
// concurrent callers are harmless.
type poolEventTracker struct {
	reader     outbound.LedgerReader
	hubPool    common.Address
	startBlock uint64
	metrics    outbound.MetricsRecorder
	logger     *slog.Logger

	mu      sync.Mutex
	ledger  *eventledger.Ledger[entity.LiquidityEvent]
	cursors map[liquidityFilter]uint64
}

func newPoolEventTracker(reader outbound.LedgerReader, hubPool common.Address, startBlock uint64, metrics outbound.MetricsRecorder, logger *slog.Logger) *poolEventTracker {
	return &poolEventTracker{
		reader:     reader,
		hubPool:    hubPool,
		startBlock: startBlock,
		metrics:    metrics,
		logger:     logger.With("tracker", "pool-events"),
		ledger:     eventledger.New[entity.LiquidityEvent](),
		cursors:    make(map[liquidityFilter]uint64),
	}
}

func (t *poolEventTracker) HasEvent(key entity.EventKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Has(key)
}

// ReadRange scans [next unscanned block for filter, endBlock] and returns the
// reduction of the liquidity events seen in blocks up to endBlock. A scan that
// already went past endBlock is not repeated.
func (t *poolEventTracker) ReadRange(ctx context.Context, endBlock uint64, filter liquidityFilter) (entity.TokenEventState, error) {
	from := t.nextBlock(filter)
	if from > endBlock {
		return t.reduce(endBlock), nil
	}

	var added, removed []entity.LogEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		added, err = t.query(gctx, entity.EventLiquidityAdded, filter, from, endBlock)
		return err
	})
	g.Go(func() error {
		var err error
		removed, err = t.query(gctx, entity.EventLiquidityRemoved, filter, from, endBlock)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events, err := toLiquidityEvents(append(added, removed...))
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.ledger.InsertAll(events)
	if err != nil {
		return nil, fmt.Errorf("failed to insert liquidity events [%d, %d]: %w", from, endBlock, err)
	}
	if endBlock+1 > t.cursors[filter] {
		t.cursors[filter] = endBlock + 1
	}
	t.metrics.RecordEventsIngested(ctx, "pool-events", n)

	t.logger.Debug("read liquidity events",
		"fromBlock", from,
		"toBlock", endBlock,
		"asset", filter.asset.Hex(),
		"user", filter.user.Hex(),
		"fetched", len(events),
		"new", n)

	return entity.ReduceLiquidityEvents(t.ledger.EventsThrough(endBlock)), nil
}

// ReadFromReceipt inserts the hub pool's liquidity events found in receipt and
// returns the reduction of the events seen up to the receipt's block.
func (t *poolEventTracker) ReadFromReceipt(ctx context.Context, receipt entity.Receipt) (entity.TokenEventState, error) {
	events, err := t.eventsFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.ledger.InsertAll(events)
	if err != nil {
		return nil, fmt.Errorf("failed to insert liquidity events from tx %s: %w", receipt.TxHash.Hex(), err)
	}
	t.metrics.RecordEventsIngested(ctx, "pool-events", n)

	return entity.ReduceLiquidityEvents(t.ledger.EventsThrough(receipt.BlockNumber)), nil
}

// ResolveAssetFromReceipt returns the single asset the receipt's liquidity
// events refer to.
func (t *poolEventTracker) ResolveAssetFromReceipt(receipt entity.Receipt) (common.Address, error) {
	events, err := t.eventsFromReceipt(receipt)
	if err != nil {
		return common.Address{}, err
	}

	assets := make(map[common.Address]struct{})
	for _, e := range events {
		assets[e.Asset] = struct{}{}
	}
	if len(assets) != 1 {
		return common.Address{}, fmt.Errorf("%w: tx %s references %d assets", ErrAmbiguousReceipt, receipt.TxHash.Hex(), len(assets))
	}
	for asset := range assets {
		return asset, nil
	}
	return common.Address{}, nil
}

func (t *poolEventTracker) eventsFromReceipt(receipt entity.Receipt) ([]entity.LiquidityEvent, error) {
	var logs []entity.LogEvent
	for _, log := range receipt.Logs {
		if log.Address != t.hubPool {
			continue
		}
		if log.Name != entity.EventLiquidityAdded && log.Name != entity.EventLiquidityRemoved {
			continue
		}
		logs = append(logs, log)
	}
	return toLiquidityEvents(logs)
}

// nextBlock returns the first block not yet scanned for filter, taking into
// account scans made with broader filters.
func (t *poolEventTracker) nextBlock(filter liquidityFilter) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.startBlock
	for f, cursor := range t.cursors {
		if f.covers(filter) && cursor > next {
			next = cursor
		}
	}
	return next
}

func (t *poolEventTracker) reduce(endBlock uint64) entity.TokenEventState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return entity.ReduceLiquidityEvents(t.ledger.EventsThrough(endBlock))
}

func (t *poolEventTracker) query(ctx context.Context, event string, filter liquidityFilter, from, to uint64) ([]entity.LogEvent, error) {
	logs, err := t.reader.QueryEvents(ctx, outbound.EventFilter{
		Contract: t.hubPool,
		Event:    event,
		Indexed:  filter.indexed(),
	}, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s events [%d, %d]: %w", event, from, to, err)
	}
	return logs, nil
}

func toLiquidityEvents(logs []entity.LogEvent) ([]entity.LiquidityEvent, error) {
	events := make([]entity.LiquidityEvent, 0, len(logs))
	for _, log := range logs {
		e, err := entity.NewLiquidityEvent(log)
		if err != nil {
			return nil, fmt.Errorf("failed to decode liquidity event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}
