package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// PoolReader reads authoritative state from the hub pool and its LP tokens.
type PoolReader interface {
	// PoolState reads the pooled token record, current exchange rate and
	// liquidity utilization of asset at block.
	PoolState(ctx context.Context, asset common.Address, block uint64) (entity.PoolReads, error)

	// ExchangeRateAt reads the LP token exchange rate of asset at block.
	ExchangeRateAt(ctx context.Context, asset common.Address, block uint64) (*big.Int, error)

	// BalanceOf reads an ERC20 balance at block.
	BalanceOf(ctx context.Context, token, account common.Address, block uint64) (*big.Int, error)
}

// DistributorReader reads the reward side system: LP tokens staked in the
// accelerating distributor and rewards claimed from the merkle distributor.
type DistributorReader interface {
	// CumulativeStake returns the amount of lpToken user has staked at block.
	CumulativeStake(ctx context.Context, lpToken, user common.Address, block uint64) (*big.Int, error)

	// Claims returns user's claims of rewardToken up to and including toBlock.
	Claims(ctx context.Context, user, rewardToken common.Address, toBlock uint64) ([]entity.ClaimEvent, error)
}

// RateModelProvider returns the utilization curve configured for an asset.
// Failures are expected and treated as best-effort by callers.
type RateModelProvider interface {
	RateModel(ctx context.Context, asset common.Address) (entity.RateModel, error)
}
