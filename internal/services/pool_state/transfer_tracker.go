package pool_state

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/eventledger"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// TransferRead is the outcome of reading a transfer tracker up to a block.
type TransferRead struct {
	// Transfers is every accepted transfer up to the read block, ascending by key.
	Transfers []entity.TransferEvent
	// NetBalanceTransferred is inbound minus outbound LP tokens over Transfers.
	NetBalanceTransferred *big.Int
	// CurrentBalance is the user's live LP token balance at the read block.
	CurrentBalance *big.Int
}

// transferTracker accumulates LP token transfers between one user and its
// peers. Mints, burns, self-transfers and distributor flows are dropped;
// staking is accounted for through distributor reads instead.
//
// The mutex is held for a whole read so at most one read per tracker runs.
type transferTracker struct {
	ledgerReader outbound.LedgerReader
	poolReader   outbound.PoolReader
	lpToken      common.Address
	user         common.Address
	distributor  common.Address
	metrics      outbound.MetricsRecorder
	logger       *slog.Logger

	mu         sync.Mutex
	startBlock uint64
	ledger     *eventledger.Ledger[entity.TransferEvent]
}

func newTransferTracker(
	ledgerReader outbound.LedgerReader,
	poolReader outbound.PoolReader,
	lpToken, user, distributor common.Address,
	startBlock uint64,
	metrics outbound.MetricsRecorder,
	logger *slog.Logger,
) *transferTracker {
	return &transferTracker{
		ledgerReader: ledgerReader,
		poolReader:   poolReader,
		lpToken:      lpToken,
		user:         user,
		distributor:  distributor,
		metrics:      metrics,
		logger:       logger.With("tracker", "transfers", "lpToken", lpToken.Hex(), "user", user.Hex()),
		startBlock:   startBlock,
		ledger:       eventledger.New[entity.TransferEvent](),
	}
}

// StartBlock returns the first block the next ReadRange will scan.
func (t *transferTracker) StartBlock() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startBlock
}

// ReadRange scans [startBlock, endBlock] and returns the transfers accepted in
// that window. It returns nothing when endBlock is below startBlock. On
// success startBlock moves to endBlock+1.
func (t *transferTracker) ReadRange(ctx context.Context, endBlock uint64) ([]entity.TransferEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readRangeLocked(ctx, endBlock)
}

// Read advances the tracker to endBlock and reduces the accepted transfers up
// to endBlock into a net balance, alongside the live LP balance at endBlock.
// Transfers after endBlock that an earlier read already ingested are left out.
func (t *transferTracker) Read(ctx context.Context, endBlock uint64) (TransferRead, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.readRangeLocked(ctx, endBlock); err != nil {
		return TransferRead{}, err
	}

	balance, err := t.poolReader.BalanceOf(ctx, t.lpToken, t.user, endBlock)
	if err != nil {
		return TransferRead{}, fmt.Errorf("failed to read lp balance of %s at block %d: %w", t.user.Hex(), endBlock, err)
	}

	transfers := t.ledger.EventsThrough(endBlock)
	net := new(big.Int)
	for _, e := range transfers {
		net.Add(net, e.SignedValue(t.user))
	}

	return TransferRead{
		Transfers:             transfers,
		NetBalanceTransferred: net,
		CurrentBalance:        balance,
	}, nil
}

func (t *transferTracker) readRangeLocked(ctx context.Context, endBlock uint64) ([]entity.TransferEvent, error) {
	if endBlock < t.startBlock {
		return nil, nil
	}
	from := t.startBlock

	var outgoing, incoming []entity.LogEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outgoing, err = t.query(gctx, "from", from, endBlock)
		return err
	})
	g.Go(func() error {
		var err error
		incoming, err = t.query(gctx, "to", from, endBlock)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	window := eventledger.New[entity.TransferEvent]()
	for _, log := range append(outgoing, incoming...) {
		e, err := entity.NewTransferEvent(log)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transfer event: %w", err)
		}
		if !t.accepts(*e) {
			continue
		}
		if _, err := window.Insert(*e); err != nil {
			return nil, fmt.Errorf("transfers of %s in [%d, %d]: %w", t.user.Hex(), from, endBlock, err)
		}
	}

	accepted := window.Events()
	n, err := t.ledger.InsertAll(accepted)
	if err != nil {
		return nil, fmt.Errorf("transfers of %s in [%d, %d]: %w", t.user.Hex(), from, endBlock, err)
	}

	t.startBlock = endBlock + 1
	t.metrics.RecordEventsIngested(ctx, "transfers", n)
	t.logger.Debug("read transfers",
		"fromBlock", from,
		"toBlock", endBlock,
		"fetched", len(outgoing)+len(incoming),
		"accepted", len(accepted))

	return accepted, nil
}

// accepts drops mints, burns, self-transfers and distributor flows.
func (t *transferTracker) accepts(e entity.TransferEvent) bool {
	zero := common.Address{}
	switch {
	case e.From == zero, e.To == zero:
		return false
	case e.From == e.To:
		return false
	case e.From == t.distributor, e.To == t.distributor:
		return false
	default:
		return true
	}
}

func (t *transferTracker) query(ctx context.Context, side string, from, to uint64) ([]entity.LogEvent, error) {
	logs, err := t.ledgerReader.QueryEvents(ctx, outbound.EventFilter{
		Contract: t.lpToken,
		Event:    entity.EventTransfer,
		Indexed:  map[string]common.Address{side: t.user},
	}, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers %s %s [%d, %d]: %w", side, t.user.Hex(), from, to, err)
	}
	return logs, nil
}
