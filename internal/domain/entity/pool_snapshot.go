package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolReads is the authoritative state of one asset's pool at one block, read
// directly from the hub pool contract.
type PoolReads struct {
	Block                uint64
	LPToken              common.Address
	IsEnabled            bool
	ExchangeRate         *big.Int
	LiquidReserves       *big.Int
	UtilizedReserves     *big.Int
	UndistributedLpFees  *big.Int
	LiquidityUtilization *big.Int
}

// PoolSnapshot is the derived economic state of one asset's pool.
type PoolSnapshot struct {
	Asset                common.Address
	LPToken              common.Address
	LatestBlock          uint64
	PreviousBlock        uint64
	ExchangeRateCurrent  *big.Int
	ExchangeRatePrevious *big.Int
	LiquidReserves       *big.Int
	UtilizedReserves     *big.Int
	UndistributedLpFees  *big.Int
	TotalPoolSize        *big.Int
	BlocksElapsed        uint64
	SecondsElapsed       uint64
	EstimatedApy         decimal.Decimal
	EstimatedApr         decimal.Decimal
	// ProjectedApr is nil when no rate model was available.
	ProjectedApr         *decimal.Decimal
	LiquidityUtilization *big.Int
	UpdatedAt            time.Time
}

// BlockOverride pins the blocks a pool refresh reads. Zero fields fall back to
// the chain head and Latest minus the configured block delta.
type BlockOverride struct {
	Latest   uint64
	Previous uint64
}
