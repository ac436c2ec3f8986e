package outbound

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

// ErrTransactionReverted is returned by TransactionReceipt for a transaction
// that was mined but reverted.
var ErrTransactionReverted = errors.New("transaction reverted")

// EventFilter selects one event type emitted by one contract. Indexed maps
// indexed argument names to the value they must equal; arguments left out
// match anything.
type EventFilter struct {
	Contract common.Address
	Event    string
	Indexed  map[string]common.Address
}

// LedgerReader is the read side of the chain: decoded log ranges, block
// headers and transaction receipts.
type LedgerReader interface {
	// QueryEvents returns the decoded events matching filter in the inclusive
	// block range [fromBlock, toBlock].
	QueryEvents(ctx context.Context, filter EventFilter, fromBlock, toBlock uint64) ([]entity.LogEvent, error)

	// BlockByNumber returns the header of the given block, or of the chain
	// head when number is nil.
	BlockByNumber(ctx context.Context, number *uint64) (entity.BlockInfo, error)

	// TransactionReceipt returns the receipt of a mined transaction with every
	// log the reader knows how to decode. A reverted transaction yields
	// ErrTransactionReverted.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (entity.Receipt, error)
}
