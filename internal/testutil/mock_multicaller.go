package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// MockMulticaller implements outbound.Multicaller by answering each call from
// a table keyed on its 4-byte method selector. A batch whose non-optional call
// reverts fails as a whole, as aggregate3 does on chain.
type MockMulticaller struct {
	mu      sync.Mutex
	answers map[string]func(outbound.Call) outbound.Result
	blocks  []*big.Int

	// ExecuteFn, when set, answers every batch instead of the selector table.
	ExecuteFn func(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error)
}

func NewMockMulticaller() *MockMulticaller {
	return &MockMulticaller{answers: make(map[string]func(outbound.Call) outbound.Result)}
}

// Answer makes method of contract return values, ABI-encoded.
func (m *MockMulticaller) Answer(contract *abi.ABI, method string, values ...interface{}) error {
	packed, err := contract.Methods[method].Outputs.Pack(values...)
	if err != nil {
		return fmt.Errorf("pack %s outputs: %w", method, err)
	}
	m.AnswerFunc(contract, method, func(outbound.Call) outbound.Result {
		return outbound.Result{Success: true, ReturnData: packed}
	})
	return nil
}

// AnswerFunc routes method of contract to fn, for answers that depend on the
// call target or arguments.
func (m *MockMulticaller) AnswerFunc(contract *abi.ABI, method string, fn func(outbound.Call) outbound.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[string(contract.Methods[method].ID)] = fn
}

// Revert makes every call to method of contract fail.
func (m *MockMulticaller) Revert(contract *abi.ABI, method string) {
	m.AnswerFunc(contract, method, func(outbound.Call) outbound.Result {
		return outbound.Result{}
	})
}

// Blocks returns the block of every executed batch in order. A nil entry is a
// read at the latest block.
func (m *MockMulticaller) Blocks() []*big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*big.Int(nil), m.blocks...)
}

func (m *MockMulticaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	m.mu.Lock()
	m.blocks = append(m.blocks, blockNumber)
	fn := m.ExecuteFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, calls, blockNumber)
	}

	results := make([]outbound.Result, len(calls))
	for i, call := range calls {
		if len(call.CallData) < 4 {
			return nil, fmt.Errorf("call %d to %s has no selector", i, call.Target.Hex())
		}
		m.mu.Lock()
		answer, ok := m.answers[string(call.CallData[:4])]
		m.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unexpected call with selector %x", call.CallData[:4])
		}
		results[i] = answer(call)
		if !results[i].Success && !call.AllowFailure {
			return nil, fmt.Errorf("call %d reverted", i)
		}
	}
	return results, nil
}

func (m *MockMulticaller) Address() common.Address {
	return multicall.Multicall3Address
}
