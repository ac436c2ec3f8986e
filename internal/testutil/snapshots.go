package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// SnapshotTime is the UpdatedAt of the sample snapshots.
var SnapshotTime = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// SamplePoolSnapshot returns a fully populated pool snapshot at block.
func SamplePoolSnapshot(asset common.Address, block uint64) *entity.PoolSnapshot {
	projected := decimal.RequireFromString("0.0431")
	return &entity.PoolSnapshot{
		Asset:                asset,
		LPToken:              common.HexToAddress("0x28F77208728B0A45cAb24c4868334581Fe86F95B"),
		LatestBlock:          block,
		PreviousBlock:        block - 7200,
		ExchangeRateCurrent:  big.NewInt(1_050_000_000_000_000_000),
		ExchangeRatePrevious: big.NewInt(1_049_000_000_000_000_000),
		LiquidReserves:       Ether(6000),
		UtilizedReserves:     Ether(3000),
		UndistributedLpFees:  Ether(12),
		TotalPoolSize:        Ether(8988),
		LiquidityUtilization: big.NewInt(333_777_777_777_777_777),
		BlocksElapsed:        7200,
		SecondsElapsed:       86400,
		EstimatedApy:         decimal.RequireFromString("0.4159"),
		EstimatedApr:         decimal.RequireFromString("0.3480"),
		ProjectedApr:         &projected,
		UpdatedAt:            SnapshotTime,
	}
}

// SampleUserSnapshot returns a fully populated user snapshot at block.
func SampleUserSnapshot(user, asset common.Address, block uint64) *entity.UserSnapshot {
	return &entity.UserSnapshot{
		User:                  user,
		Asset:                 asset,
		Block:                 block,
		LPTokenBalance:        Ether(90),
		StakedBalance:         Ether(10),
		PositionValue:         Ether(105),
		TotalDeposited:        Ether(100),
		AirdropBalance:        big.NewInt(0),
		TransferValue:         Ether(-2),
		NetBalanceTransferred: Ether(-2),
		FeesEarned:            Ether(7),
		UpdatedAt:             SnapshotTime,
	}
}
