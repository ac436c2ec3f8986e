package pool_state

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

const secondsPerYear = 365 * 24 * 60 * 60

// poolJoin holds every input of a pool snapshot.
type poolJoin struct {
	asset        common.Address
	latest       entity.BlockInfo
	previous     entity.BlockInfo
	current      entity.PoolReads
	previousRate *big.Int
	rateModel    *entity.RateModel
	now          time.Time
}

func joinPool(in poolJoin) *entity.PoolSnapshot {
	var secondsElapsed uint64
	if in.latest.Timestamp > in.previous.Timestamp {
		secondsElapsed = in.latest.Timestamp - in.previous.Timestamp
	}
	var blocksElapsed uint64
	if in.latest.Number > in.previous.Number {
		blocksElapsed = in.latest.Number - in.previous.Number
	}

	apy, apr := estimateYield(in.previousRate, in.current.ExchangeRate, secondsElapsed)

	snapshot := &entity.PoolSnapshot{
		Asset:                in.asset,
		LPToken:              in.current.LPToken,
		LatestBlock:          in.latest.Number,
		PreviousBlock:        in.previous.Number,
		ExchangeRateCurrent:  new(big.Int).Set(in.current.ExchangeRate),
		ExchangeRatePrevious: new(big.Int).Set(in.previousRate),
		LiquidReserves:       new(big.Int).Set(in.current.LiquidReserves),
		UtilizedReserves:     new(big.Int).Set(in.current.UtilizedReserves),
		UndistributedLpFees:  new(big.Int).Set(in.current.UndistributedLpFees),
		TotalPoolSize:        new(big.Int).Add(in.current.LiquidReserves, in.current.UtilizedReserves),
		BlocksElapsed:        blocksElapsed,
		SecondsElapsed:       secondsElapsed,
		EstimatedApy:         apy,
		EstimatedApr:         apr,
		LiquidityUtilization: new(big.Int).Set(in.current.LiquidityUtilization),
		UpdatedAt:            in.now,
	}
	if in.rateModel != nil {
		projected := projectedApr(*in.rateModel, in.current.LiquidityUtilization)
		snapshot.ProjectedApr = &projected
	}
	return snapshot
}

// estimateYield annualizes the growth from previous to current over
// secondsElapsed, compounded (APY) and simple (APR).
func estimateYield(previous, current *big.Int, secondsElapsed uint64) (apy, apr decimal.Decimal) {
	if secondsElapsed == 0 || previous.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}

	growth := decimal.NewFromBigInt(new(big.Int).Sub(current, previous), 0).
		Div(decimal.NewFromBigInt(previous, 0))
	periods := decimal.NewFromInt(secondsPerYear).Div(decimal.NewFromInt(int64(secondsElapsed)))
	apr = growth.Mul(periods)

	g, _ := growth.Float64()
	p, _ := periods.Float64()
	compounded := math.Expm1(p * math.Log1p(g))
	if math.IsNaN(compounded) || math.IsInf(compounded, 0) {
		return decimal.Zero, apr
	}
	return decimal.NewFromFloat(compounded), apr
}

// projectedApr is the rate model's instantaneous rate scaled by utilization,
// as a fraction.
func projectedApr(model entity.RateModel, utilization *big.Int) decimal.Decimal {
	rate := model.InstantaneousRate(utilization)
	scaled := new(big.Int).Mul(rate, utilization)
	scaled.Quo(scaled, entity.WeiPerEther)
	return decimal.NewFromBigInt(scaled, -18)
}

// userJoin holds every input of a user snapshot.
type userJoin struct {
	user          common.Address
	pool          *entity.PoolSnapshot
	deposited     *big.Int
	transfers     TransferRead
	staked        *big.Int
	airdropped    *big.Int
	transferValue *big.Int
	now           time.Time
}

func joinUser(in userJoin) *entity.UserSnapshot {
	shares := new(big.Int).Add(in.transfers.CurrentBalance, in.staked)
	positionValue := valueAt(in.pool.ExchangeRateCurrent, shares)

	totalDeposited := new(big.Int).Add(in.deposited, in.airdropped)

	feesEarned := new(big.Int).Add(totalDeposited, in.transferValue)
	feesEarned.Sub(positionValue, feesEarned)

	return &entity.UserSnapshot{
		User:                  in.user,
		Asset:                 in.pool.Asset,
		Block:                 in.pool.LatestBlock,
		LPTokenBalance:        new(big.Int).Set(in.transfers.CurrentBalance),
		StakedBalance:         new(big.Int).Set(in.staked),
		PositionValue:         positionValue,
		TotalDeposited:        totalDeposited,
		AirdropBalance:        new(big.Int).Set(in.airdropped),
		TransferValue:         new(big.Int).Set(in.transferValue),
		NetBalanceTransferred: new(big.Int).Set(in.transfers.NetBalanceTransferred),
		FeesEarned:            feesEarned,
		UpdatedAt:             in.now,
	}
}

// valueAt converts LP shares to underlying at a 1e18 exchange rate.
func valueAt(rate, shares *big.Int) *big.Int {
	v := new(big.Int).Mul(rate, shares)
	return v.Quo(v, entity.WeiPerEther)
}
