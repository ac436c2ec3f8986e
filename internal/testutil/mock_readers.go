package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// MockPoolReader implements outbound.PoolReader for testing.
type MockPoolReader struct {
	mu               sync.Mutex
	PoolStateFn      func(ctx context.Context, asset common.Address, block uint64) (entity.PoolReads, error)
	ExchangeRateAtFn func(ctx context.Context, asset common.Address, block uint64) (*big.Int, error)
	BalanceOfFn      func(ctx context.Context, token, account common.Address, block uint64) (*big.Int, error)

	PoolStateCalls    int
	ExchangeRateCalls []uint64
	BalanceOfCalls    int
}

func (m *MockPoolReader) PoolState(ctx context.Context, asset common.Address, block uint64) (entity.PoolReads, error) {
	m.mu.Lock()
	m.PoolStateCalls++
	m.mu.Unlock()
	if m.PoolStateFn != nil {
		return m.PoolStateFn(ctx, asset, block)
	}
	return entity.PoolReads{}, errors.New("PoolState not mocked")
}

func (m *MockPoolReader) ExchangeRateAt(ctx context.Context, asset common.Address, block uint64) (*big.Int, error) {
	m.mu.Lock()
	m.ExchangeRateCalls = append(m.ExchangeRateCalls, block)
	m.mu.Unlock()
	if m.ExchangeRateAtFn != nil {
		return m.ExchangeRateAtFn(ctx, asset, block)
	}
	return nil, errors.New("ExchangeRateAt not mocked")
}

func (m *MockPoolReader) BalanceOf(ctx context.Context, token, account common.Address, block uint64) (*big.Int, error) {
	m.mu.Lock()
	m.BalanceOfCalls++
	m.mu.Unlock()
	if m.BalanceOfFn != nil {
		return m.BalanceOfFn(ctx, token, account, block)
	}
	return nil, errors.New("BalanceOf not mocked")
}

// ExchangeRateCallCount returns how many historical rate reads were made.
func (m *MockPoolReader) ExchangeRateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExchangeRateCalls)
}

// MockDistributorReader implements outbound.DistributorReader for testing.
type MockDistributorReader struct {
	CumulativeStakeFn func(ctx context.Context, lpToken, user common.Address, block uint64) (*big.Int, error)
	ClaimsFn          func(ctx context.Context, user, rewardToken common.Address, toBlock uint64) ([]entity.ClaimEvent, error)
}

func (m *MockDistributorReader) CumulativeStake(ctx context.Context, lpToken, user common.Address, block uint64) (*big.Int, error) {
	if m.CumulativeStakeFn != nil {
		return m.CumulativeStakeFn(ctx, lpToken, user, block)
	}
	return new(big.Int), nil
}

func (m *MockDistributorReader) Claims(ctx context.Context, user, rewardToken common.Address, toBlock uint64) ([]entity.ClaimEvent, error) {
	if m.ClaimsFn != nil {
		return m.ClaimsFn(ctx, user, rewardToken, toBlock)
	}
	return nil, nil
}

// MockRateModelProvider implements outbound.RateModelProvider for testing.
type MockRateModelProvider struct {
	RateModelFn func(ctx context.Context, asset common.Address) (entity.RateModel, error)
}

func (m *MockRateModelProvider) RateModel(ctx context.Context, asset common.Address) (entity.RateModel, error) {
	if m.RateModelFn != nil {
		return m.RateModelFn(ctx, asset)
	}
	return entity.RateModel{}, errors.New("RateModel not mocked")
}
