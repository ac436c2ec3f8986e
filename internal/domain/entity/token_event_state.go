package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenEventState maps asset to depositor to the cumulative net amount of the
// asset the depositor has added to the pool.
type TokenEventState map[common.Address]map[common.Address]*big.Int

// ReduceLiquidityEvents folds events into a fresh TokenEventState.
func ReduceLiquidityEvents(events []LiquidityEvent) TokenEventState {
	state := make(TokenEventState)
	for _, e := range events {
		state.apply(e)
	}
	return state
}

func (s TokenEventState) apply(e LiquidityEvent) {
	users, ok := s[e.Asset]
	if !ok {
		users = make(map[common.Address]*big.Int)
		s[e.Asset] = users
	}
	balance, ok := users[e.Provider]
	if !ok {
		balance = new(big.Int)
		users[e.Provider] = balance
	}
	balance.Add(balance, e.SignedAmount())
}

// Balance returns the user's net contribution of asset, zero when unknown.
func (s TokenEventState) Balance(asset, user common.Address) *big.Int {
	if v, ok := s[asset][user]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
