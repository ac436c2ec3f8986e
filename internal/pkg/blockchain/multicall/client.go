// Package multicall batches contract reads into one aggregate3 call against a
// Multicall3 deployment.
package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on every
// EVM chain it exists on.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Compile-time check that Client implements outbound.Multicaller
var _ outbound.Multicaller = (*Client)(nil)

// ContractCaller is the subset of ethclient.Client used to run eth_call.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Client struct {
	caller  ContractCaller
	address common.Address
	abi     *abi.ABI
}

func NewClient(caller ContractCaller, multicall3Address common.Address) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall3 ABI: %w", err)
	}

	return &Client{
		caller:  caller,
		address: multicall3Address,
		abi:     multicallABI,
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

// aggregate3Call mirrors the Call3 tuple; field names follow the ABI component
// names so the packer can match them.
type aggregate3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

func (c *Client) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return []outbound.Result{}, nil
	}

	packed := make([]aggregate3Call, len(calls))
	for i, call := range calls {
		packed[i] = aggregate3Call(call)
	}
	data, err := c.abi.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall contract at address=%s block=%s calls=%d: %w",
			c.address.Hex(), blockNumberString(blockNumber), len(calls), err)
	}

	unpacked, err := c.abi.Unpack("aggregate3", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multicall response at block=%s: %w",
			blockNumberString(blockNumber), err)
	}
	if len(unpacked) != 1 {
		return nil, fmt.Errorf("unexpected multicall output count %d", len(unpacked))
	}

	resultsRaw, ok := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected multicall output type %T", unpacked[0])
	}
	if len(resultsRaw) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(resultsRaw), len(calls))
	}

	results := make([]outbound.Result, len(resultsRaw))
	for i, r := range resultsRaw {
		if !r.Success && !calls[i].AllowFailure {
			return nil, fmt.Errorf("call %d to %s reverted", i, calls[i].Target.Hex())
		}
		results[i] = outbound.Result{
			Success:    r.Success,
			ReturnData: r.ReturnData,
		}
	}

	return results, nil
}

func blockNumberString(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return blockNumber.String()
}
