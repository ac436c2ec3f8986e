package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// SnapshotSink receives every refresh outcome: snapshots, degraded snapshots
// carrying a warning, and failures.
type SnapshotSink interface {
	Emit(ctx context.Context, result entity.RefreshResult) error
	Close() error
}

// RateStore persists historical exchange rates so a restarted process does not
// re-read them from an archive node. Rates are keyed by asset and block.
type RateStore interface {
	// LoadRates returns the stored rates of asset for the requested blocks.
	// Blocks without a stored rate are absent from the result.
	LoadRates(ctx context.Context, asset common.Address, blocks []uint64) (map[uint64]*big.Int, error)

	SaveRates(ctx context.Context, asset common.Address, rates map[uint64]*big.Int) error
}

// SnapshotReader serves the most recent stored snapshots. Both methods return
// nil and no error when nothing has been stored yet.
type SnapshotReader interface {
	LatestPoolSnapshot(ctx context.Context, asset common.Address) (*entity.PoolSnapshot, error)
	LatestUserSnapshot(ctx context.Context, user, asset common.Address) (*entity.UserSnapshot, error)
}
