package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller batches contract reads through a multicall3 deployment.
type Multicaller interface {
	// Execute runs calls in one aggregate3 request at blockNumber (nil for latest).
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}
