package pool_state

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// rateCache maps asset to block number to the LP exchange rate at that block.
// Entries are never evicted.
type rateCache struct {
	mu    sync.RWMutex
	rates map[common.Address]map[uint64]*big.Int
}

func newRateCache() *rateCache {
	return &rateCache{rates: make(map[common.Address]map[uint64]*big.Int)}
}

func (c *rateCache) Get(asset common.Address, block uint64) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rate, ok := c.rates[asset][block]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(rate), true
}

// Fill merges entries into the asset's map, overwriting existing blocks, and
// returns a copy of the merged map.
func (c *rateCache) Fill(asset common.Address, entries map[uint64]*big.Int) map[uint64]*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	byBlock, ok := c.rates[asset]
	if !ok {
		byBlock = make(map[uint64]*big.Int, len(entries))
		c.rates[asset] = byBlock
	}
	for block, rate := range entries {
		byBlock[block] = new(big.Int).Set(rate)
	}

	merged := make(map[uint64]*big.Int, len(byBlock))
	for block, rate := range byBlock {
		merged[block] = new(big.Int).Set(rate)
	}
	return merged
}

// Missing returns the distinct blocks without a cached rate, ascending.
func (c *rateCache) Missing(asset common.Address, blocks []uint64) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[uint64]struct{}, len(blocks))
	var missing []uint64
	for _, block := range blocks {
		if _, dup := seen[block]; dup {
			continue
		}
		seen[block] = struct{}{}
		if _, ok := c.rates[asset][block]; !ok {
			missing = append(missing, block)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
