package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// BlockTime is the spacing of MockLedgerReader block timestamps.
const BlockTime = 12

// GenesisTimestamp is the timestamp MockLedgerReader assigns to block 0.
const GenesisTimestamp = 1_700_000_000

// MockLedgerReader is an in-memory chain: a list of decoded logs answered with
// the same filter semantics as eth_getLogs, synthetic block headers, and
// receipts. Each Fn field, when set, replaces the default behaviour.
type MockLedgerReader struct {
	mu       sync.Mutex
	Logs     []entity.LogEvent
	Head     uint64
	Receipts map[common.Hash]entity.Receipt

	QueryEventsFn   func(ctx context.Context, filter outbound.EventFilter, from, to uint64) ([]entity.LogEvent, error)
	BlockByNumberFn func(ctx context.Context, number *uint64) (entity.BlockInfo, error)
	ReceiptFn       func(ctx context.Context, txHash common.Hash) (entity.Receipt, error)

	Queries []LedgerQuery
}

// LedgerQuery records one QueryEvents call.
type LedgerQuery struct {
	Filter    outbound.EventFilter
	FromBlock uint64
	ToBlock   uint64
}

func NewMockLedgerReader(head uint64) *MockLedgerReader {
	return &MockLedgerReader{
		Head:     head,
		Receipts: make(map[common.Hash]entity.Receipt),
	}
}

// AddLogs appends logs to the chain.
func (m *MockLedgerReader) AddLogs(logs ...entity.LogEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, logs...)
}

// SetHead moves the chain head.
func (m *MockLedgerReader) SetHead(head uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Head = head
}

// QueryCount returns how many QueryEvents calls were made.
func (m *MockLedgerReader) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// ResetQueries forgets recorded queries.
func (m *MockLedgerReader) ResetQueries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = nil
}

func (m *MockLedgerReader) QueryEvents(ctx context.Context, filter outbound.EventFilter, from, to uint64) ([]entity.LogEvent, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, LedgerQuery{Filter: filter, FromBlock: from, ToBlock: to})
	fn := m.QueryEventsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, filter, from, to)
	}
	if from > to {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []entity.LogEvent
	for _, log := range m.Logs {
		if log.Address != filter.Contract || log.Name != filter.Event {
			continue
		}
		if log.Key.BlockNumber < from || log.Key.BlockNumber > to {
			continue
		}
		if !matchesIndexed(log, filter.Indexed) {
			continue
		}
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

func matchesIndexed(log entity.LogEvent, indexed map[string]common.Address) bool {
	for name, want := range indexed {
		got, ok := log.Args[name].(common.Address)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (m *MockLedgerReader) BlockByNumber(ctx context.Context, number *uint64) (entity.BlockInfo, error) {
	m.mu.Lock()
	fn := m.BlockByNumberFn
	head := m.Head
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, number)
	}
	n := head
	if number != nil {
		n = *number
	}
	if n > head {
		return entity.BlockInfo{}, fmt.Errorf("block %d is beyond head %d", n, head)
	}
	return entity.BlockInfo{Number: n, Timestamp: GenesisTimestamp + n*BlockTime}, nil
}

func (m *MockLedgerReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (entity.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReceiptFn != nil {
		return m.ReceiptFn(ctx, txHash)
	}
	receipt, ok := m.Receipts[txHash]
	if !ok {
		return entity.Receipt{}, errors.New("receipt not found")
	}
	return receipt, nil
}
