package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that RateStore implements outbound.RateStore
var _ outbound.RateStore = (*RateStore)(nil)

// RateStore is an in-memory RateStore. It is safe for concurrent use.
type RateStore struct {
	mu    sync.RWMutex
	rates map[common.Address]map[uint64]*big.Int

	LoadCalls int
	SaveCalls int
}

func NewRateStore() *RateStore {
	return &RateStore{rates: make(map[common.Address]map[uint64]*big.Int)}
}

func (s *RateStore) LoadRates(ctx context.Context, asset common.Address, blocks []uint64) (map[uint64]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls++

	out := make(map[uint64]*big.Int)
	for _, block := range blocks {
		if rate, ok := s.rates[asset][block]; ok {
			out[block] = new(big.Int).Set(rate)
		}
	}
	return out, nil
}

func (s *RateStore) SaveRates(ctx context.Context, asset common.Address, rates map[uint64]*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++

	byBlock, ok := s.rates[asset]
	if !ok {
		byBlock = make(map[uint64]*big.Int, len(rates))
		s.rates[asset] = byBlock
	}
	for block, rate := range rates {
		byBlock[block] = new(big.Int).Set(rate)
	}
	return nil
}

// Len returns the number of rates stored for asset.
func (s *RateStore) Len(asset common.Address) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rates[asset])
}
