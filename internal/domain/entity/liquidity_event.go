package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
)

// LiquidityKind distinguishes deposits from withdrawals.
type LiquidityKind int

const (
	LiquidityAdded LiquidityKind = iota + 1
	LiquidityRemoved
)

func (k LiquidityKind) String() string {
	switch k {
	case LiquidityAdded:
		return EventLiquidityAdded
	case LiquidityRemoved:
		return EventLiquidityRemoved
	default:
		return fmt.Sprintf("LiquidityKind(%d)", int(k))
	}
}

// LiquidityEvent is a deposit into or withdrawal from the hub pool.
// Amount is denominated in the underlying asset, LPTokens in pool shares.
type LiquidityEvent struct {
	Key      EventKey
	TxHash   common.Hash
	Kind     LiquidityKind
	Asset    common.Address
	Provider common.Address
	Amount   *big.Int
	LPTokens *big.Int
}

// NewLiquidityEvent converts a decoded LiquidityAdded or LiquidityRemoved log.
func NewLiquidityEvent(log LogEvent) (*LiquidityEvent, error) {
	e := &LiquidityEvent{Key: log.Key, TxHash: log.TxHash}

	lpArg := "lpTokensMinted"
	switch log.Name {
	case EventLiquidityAdded:
		e.Kind = LiquidityAdded
	case EventLiquidityRemoved:
		e.Kind = LiquidityRemoved
		lpArg = "lpTokensBurnt"
	default:
		return nil, fmt.Errorf("unexpected event %q for liquidity event", log.Name)
	}

	var err error
	if e.Asset, err = log.AddressArg("l1Token"); err != nil {
		return nil, err
	}
	if e.Provider, err = log.AddressArg("liquidityProvider"); err != nil {
		return nil, err
	}
	if e.Amount, err = log.BigIntArg("amount"); err != nil {
		return nil, err
	}
	if e.LPTokens, err = log.BigIntArg(lpArg); err != nil {
		return nil, err
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *LiquidityEvent) validate() error {
	if e.Asset == (common.Address{}) {
		return fmt.Errorf("liquidity event %s: asset must not be zero", e.Key)
	}
	if e.Amount.Sign() < 0 {
		return fmt.Errorf("liquidity event %s: amount must be non-negative, got %s", e.Key, e.Amount)
	}
	if e.LPTokens.Sign() < 0 {
		return fmt.Errorf("liquidity event %s: lp tokens must be non-negative, got %s", e.Key, e.LPTokens)
	}
	return nil
}

// EventKey returns the event's position in the pool's log stream.
func (e LiquidityEvent) EventKey() EventKey { return e.Key }

// SignedAmount is the amount with withdrawals negated.
func (e LiquidityEvent) SignedAmount() *big.Int {
	if e.Kind == LiquidityRemoved {
		return new(big.Int).Neg(e.Amount)
	}
	return new(big.Int).Set(e.Amount)
}

// SameAs reports whether two liquidity events carry identical content.
func (e LiquidityEvent) SameAs(other LiquidityEvent) bool {
	return e.Key == other.Key &&
		e.TxHash == other.TxHash &&
		e.Kind == other.Kind &&
		e.Asset == other.Asset &&
		e.Provider == other.Provider &&
		bigEqual(e.Amount, other.Amount) &&
		bigEqual(e.LPTokens, other.LPTokens)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
