package entity

import (
	"fmt"
	"math/big"
)

// WeiPerEther is the 1e18 fixed point scale used by rates and utilization.
var WeiPerEther = big.NewInt(1_000_000_000_000_000_000)

// RateModel is a kinked utilization curve. All fields are 1e18 fixed point:
// UBar is the kink utilization, R0 the base rate, R1 the slope below the kink
// and R2 the slope above it.
type RateModel struct {
	UBar *big.Int
	R0   *big.Int
	R1   *big.Int
	R2   *big.Int
}

// NewRateModel validates and returns a rate model.
func NewRateModel(uBar, r0, r1, r2 *big.Int) (*RateModel, error) {
	m := &RateModel{UBar: uBar, R0: r0, R1: r1, R2: r2}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RateModel) validate() error {
	for name, v := range map[string]*big.Int{"UBar": m.UBar, "R0": m.R0, "R1": m.R1, "R2": m.R2} {
		if v == nil {
			return fmt.Errorf("rate model %s must be set", name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("rate model %s must be non-negative, got %s", name, v)
		}
	}
	if m.UBar.Cmp(WeiPerEther) > 0 {
		return fmt.Errorf("rate model UBar must not exceed 1e18, got %s", m.UBar)
	}
	return nil
}

// InstantaneousRate returns the annualized borrow rate at the given
// utilization, 1e18 fixed point.
func (m RateModel) InstantaneousRate(utilization *big.Int) *big.Int {
	rate := new(big.Int).Set(m.R0)

	if m.UBar.Sign() > 0 {
		beforeKink := minBig(utilization, m.UBar)
		beforeKink.Mul(beforeKink, m.R1)
		beforeKink.Quo(beforeKink, m.UBar)
		rate.Add(rate, beforeKink)
	}

	afterKinkRange := new(big.Int).Sub(WeiPerEther, m.UBar)
	if excess := new(big.Int).Sub(utilization, m.UBar); excess.Sign() > 0 && afterKinkRange.Sign() > 0 {
		excess.Mul(excess, m.R2)
		excess.Quo(excess, afterKinkRange)
		rate.Add(rate, excess)
	}

	return rate
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
