package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/retry"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/testutil"
)

func newTestClient(t *testing.T, node *testutil.MockEthRPC, configure func(*Config)) *Client {
	t.Helper()
	ec, err := ethclient.DialContext(context.Background(), node.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(ec.Close)

	config := Config{
		RequestsPerSecond: 1000,
		Burst:             100,
		Retry:             retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
		Logger:            testutil.DiscardLogger(),
	}
	if configure != nil {
		configure(&config)
	}
	client, err := NewClient(ec, mustDecoder(t), config)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(nil, &EventDecoder{}, Config{}); err == nil || err.Error() != "eth client is required" {
		t.Errorf("err = %v", err)
	}
	node := testutil.StartMockEthRPC(t, 1)
	ec, err := ethclient.Dial(node.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ec.Close()
	if _, err := NewClient(ec, nil, Config{}); err == nil || err.Error() != "event decoder is required" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_QueryEventsFiltersByIndexedArgs(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	node.AddLogs(
		liquidityAdded(t, 160, 0, 0, weth, bob, 10),
		liquidityAdded(t, 150, 2, 1, weth, alice, 5000),
		liquidityAdded(t, 150, 1, 4, weth, alice, 7),
		liquidityAdded(t, 250, 0, 0, weth, alice, 1),
	)
	client := newTestClient(t, node, nil)

	events, err := client.QueryEvents(context.Background(), outbound.EventFilter{
		Contract: hubPool,
		Event:    entity.EventLiquidityAdded,
		Indexed:  map[string]common.Address{"liquidityProvider": alice},
	}, 100, 200)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}

	want := []entity.EventKey{{BlockNumber: 150, TxIndex: 1, LogIndex: 4}, {BlockNumber: 150, TxIndex: 2, LogIndex: 1}}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, k := range want {
		if events[i].Key != k {
			t.Errorf("event %d key = %s, want %s", i, events[i].Key, k)
		}
		if provider, _ := events[i].AddressArg("liquidityProvider"); provider != alice {
			t.Errorf("event %d provider = %s", i, provider.Hex())
		}
	}
}

func TestClient_QueryEventsSplitsWideRanges(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	node.AddLogs(
		transfer(t, 120, 0, 0, bob, alice, 1),
		transfer(t, 180, 0, 0, bob, alice, 2),
		transfer(t, 260, 0, 0, bob, alice, 3),
	)
	client := newTestClient(t, node, func(c *Config) { c.MaxBlockRange = 50 })

	events, err := client.QueryEvents(context.Background(), outbound.EventFilter{
		Contract: lpWeth,
		Event:    entity.EventTransfer,
		Indexed:  map[string]common.Address{"to": alice},
	}, 100, 299)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3", len(events))
	}
	if got := node.Requests("eth_getLogs"); got != 4 {
		t.Errorf("eth_getLogs requests = %d, want 4", got)
	}
}

func TestClient_QueryEventsRejectsInvertedRange(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	client := newTestClient(t, node, nil)

	if _, err := client.QueryEvents(context.Background(), outbound.EventFilter{Contract: lpWeth, Event: entity.EventTransfer}, 200, 100); err == nil {
		t.Error("expected an error for an inverted range")
	}
	if node.Requests("eth_getLogs") != 0 {
		t.Error("inverted range reached the node")
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	node.AddLogs(transfer(t, 120, 0, 0, bob, alice, 1))
	node.FailNext("eth_getLogs", 2, "429 Too Many Requests")
	client := newTestClient(t, node, nil)

	events, err := client.QueryEvents(context.Background(), outbound.EventFilter{Contract: lpWeth, Event: entity.EventTransfer}, 100, 200)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
	if got := node.Requests("eth_getLogs"); got != 3 {
		t.Errorf("eth_getLogs requests = %d, want 3", got)
	}
}

func TestClient_DoesNotRetryPermanentErrors(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	node.FailNext("eth_getLogs", 1, "query returned more than 10000 results")
	client := newTestClient(t, node, nil)

	_, err := client.QueryEvents(context.Background(), outbound.EventFilter{Contract: lpWeth, Event: entity.EventTransfer}, 100, 200)
	if err == nil || !strings.Contains(err.Error(), "more than 10000 results") {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, retry.ErrExhausted) {
		t.Error("permanent error was retried")
	}
	if got := node.Requests("eth_getLogs"); got != 1 {
		t.Errorf("eth_getLogs requests = %d, want 1", got)
	}
}

func TestClient_BlockByNumber(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1000)
	client := newTestClient(t, node, nil)
	ctx := context.Background()

	head, err := client.BlockByNumber(ctx, nil)
	if err != nil {
		t.Fatalf("BlockByNumber(nil): %v", err)
	}
	if head.Number != 1000 || head.Timestamp != testutil.GenesisTimestamp+1000*testutil.BlockTime {
		t.Errorf("head = %+v", head)
	}

	n := uint64(990)
	block, err := client.BlockByNumber(ctx, &n)
	if err != nil {
		t.Fatalf("BlockByNumber(990): %v", err)
	}
	if head.Timestamp-block.Timestamp != 10*testutil.BlockTime {
		t.Errorf("timestamps %d and %d are not 10 blocks apart", head.Timestamp, block.Timestamp)
	}

	beyond := uint64(2000)
	if _, err := client.BlockByNumber(ctx, &beyond); err == nil {
		t.Error("expected an error beyond the head")
	}
}

func TestClient_TransactionReceipt(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1100)
	client := newTestClient(t, node, nil)

	deposit := liquidityAdded(t, 1050, 0, 0, weth, alice, 1000)
	unknown := types.Log{
		Address:     weth,
		Topics:      []common.Hash{common.HexToHash("0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c")},
		Data:        []byte{},
		BlockNumber: 1050,
		TxHash:      deposit.TxHash,
		Index:       1,
	}
	node.AddReceipt(&types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 120_000,
		Logs:              []*types.Log{&deposit, &unknown},
		TxHash:            deposit.TxHash,
		GasUsed:           120_000,
		BlockHash:         deposit.BlockHash,
		BlockNumber:       big.NewInt(1050),
	})

	receipt, err := client.TransactionReceipt(context.Background(), deposit.TxHash)
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if receipt.BlockNumber != 1050 || receipt.TxHash != deposit.TxHash {
		t.Errorf("receipt = %d / %s", receipt.BlockNumber, receipt.TxHash.Hex())
	}
	if len(receipt.Logs) != 1 || receipt.Logs[0].Name != entity.EventLiquidityAdded {
		t.Errorf("decoded logs = %+v, want only the deposit", receipt.Logs)
	}

	if _, err := client.TransactionReceipt(context.Background(), common.HexToHash("0xdead")); err == nil {
		t.Error("expected an error for an unknown transaction")
	}
}

func TestClient_RevertedReceipt(t *testing.T) {
	node := testutil.StartMockEthRPC(t, 1100)
	client := newTestClient(t, node, nil)

	txHash := common.HexToHash("0xbad")
	node.AddReceipt(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		Logs:        []*types.Log{},
		TxHash:      txHash,
		BlockNumber: big.NewInt(1000),
	})

	if _, err := client.TransactionReceipt(context.Background(), txHash); !errors.Is(err, outbound.ErrTransactionReverted) {
		t.Errorf("err = %v, want ErrTransactionReverted", err)
	}
}
