package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/testutil"
)

var (
	hubPool     = common.HexToAddress("0xc186fA914353c44b2E33eBE05f21846F1048bEda")
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	lpWeth      = common.HexToAddress("0x28F77208728B0A45cAb24c4868334581Fe86F95B")
	accelerator = common.HexToAddress("0x9040e41eF5E8b281535a96D9a48aCb8cfaBD9a48")
	merkle      = common.HexToAddress("0xE50b2cEAC4f60E840Ae513924033E753e2366487")
	configStore = common.HexToAddress("0x3B03509645713718B78951126E0A6de6f10043f5")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func mustABI(t *testing.T, load func() (*abi.ABI, error)) *abi.ABI {
	t.Helper()
	parsed, err := load()
	if err != nil {
		t.Fatalf("load abi: %v", err)
	}
	return parsed
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func mustDecoder(t *testing.T) *EventDecoder {
	t.Helper()
	d, err := NewDefaultEventDecoder()
	if err != nil {
		t.Fatalf("NewDefaultEventDecoder: %v", err)
	}
	return d
}

// rawLog encodes an event the way a node returns it. indexed values go to the
// topics in declaration order, the rest are ABI packed into data.
func rawLog(t *testing.T, contract *abi.ABI, name string, address common.Address, block uint64, txIndex, logIndex uint, indexed []common.Address, data ...interface{}) types.Log {
	t.Helper()
	event := contract.Events[name]
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("pack %s data: %v", name, err)
	}
	topics := []common.Hash{event.ID}
	for _, a := range indexed {
		topics = append(topics, addressTopic(a))
	}
	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		TxHash:      crypto.Keccak256Hash(big.NewInt(int64(block*1000 + uint64(txIndex))).Bytes()),
		TxIndex:     txIndex,
		Index:       logIndex,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func liquidityAdded(t *testing.T, block uint64, txIndex, logIndex uint, asset, provider common.Address, amount int64) types.Log {
	t.Helper()
	return rawLog(t, mustABI(t, abis.GetHubPoolABI), "LiquidityAdded", hubPool, block, txIndex, logIndex,
		[]common.Address{asset, provider}, big.NewInt(amount), big.NewInt(amount))
}

func transfer(t *testing.T, block uint64, txIndex, logIndex uint, from, to common.Address, value int64) types.Log {
	t.Helper()
	return rawLog(t, mustABI(t, abis.GetERC20ABI), "Transfer", lpWeth, block, txIndex, logIndex,
		[]common.Address{from, to}, big.NewInt(value))
}

// methodResponder wraps the selector-table multicaller so ABI packing errors
// fail the test.
type methodResponder struct {
	t  *testing.T
	mc *testutil.MockMulticaller
}

func newMethodResponder(t *testing.T) *methodResponder {
	return &methodResponder{t: t, mc: testutil.NewMockMulticaller()}
}

// on registers a fixed answer for method of contract.
func (r *methodResponder) on(contract *abi.ABI, method string, values ...interface{}) {
	r.t.Helper()
	if err := r.mc.Answer(contract, method, values...); err != nil {
		r.t.Fatal(err)
	}
}

// revert makes method of contract fail.
func (r *methodResponder) revert(contract *abi.ABI, method string) {
	r.mc.Revert(contract, method)
}

func (r *methodResponder) blocks() []*big.Int { return r.mc.Blocks() }

func (r *methodResponder) multicaller() *testutil.MockMulticaller { return r.mc }
