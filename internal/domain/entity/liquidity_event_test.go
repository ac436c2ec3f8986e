package entity

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testAsset    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testProvider = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func liquidityLog(name string, args map[string]any) LogEvent {
	return LogEvent{
		Key:    EventKey{BlockNumber: 101},
		TxHash: common.HexToHash("0xabc"),
		Name:   name,
		Args:   args,
	}
}

func TestNewLiquidityEvent(t *testing.T) {
	tests := []struct {
		name        string
		log         LogEvent
		wantKind    LiquidityKind
		wantSigned  int64
		wantErr     bool
		errContains string
	}{
		{
			name: "added",
			log: liquidityLog(EventLiquidityAdded, map[string]any{
				"l1Token":           testAsset,
				"liquidityProvider": testProvider,
				"amount":            big.NewInt(50),
				"lpTokensMinted":    big.NewInt(48),
			}),
			wantKind:   LiquidityAdded,
			wantSigned: 50,
		},
		{
			name: "removed",
			log: liquidityLog(EventLiquidityRemoved, map[string]any{
				"l1Token":           testAsset,
				"liquidityProvider": testProvider,
				"amount":            big.NewInt(20),
				"lpTokensBurnt":     big.NewInt(19),
			}),
			wantKind:   LiquidityRemoved,
			wantSigned: -20,
		},
		{
			name:        "wrong event name",
			log:         liquidityLog("Transfer", nil),
			wantErr:     true,
			errContains: "unexpected event",
		},
		{
			name: "missing amount",
			log: liquidityLog(EventLiquidityAdded, map[string]any{
				"l1Token":           testAsset,
				"liquidityProvider": testProvider,
				"lpTokensMinted":    big.NewInt(48),
			}),
			wantErr:     true,
			errContains: `missing argument "amount"`,
		},
		{
			name: "zero asset",
			log: liquidityLog(EventLiquidityAdded, map[string]any{
				"l1Token":           common.Address{},
				"liquidityProvider": testProvider,
				"amount":            big.NewInt(1),
				"lpTokensMinted":    big.NewInt(1),
			}),
			wantErr:     true,
			errContains: "asset must not be zero",
		},
		{
			name: "wrong argument type",
			log: liquidityLog(EventLiquidityAdded, map[string]any{
				"l1Token":           "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				"liquidityProvider": testProvider,
				"amount":            big.NewInt(1),
				"lpTokensMinted":    big.NewInt(1),
			}),
			wantErr:     true,
			errContains: "not an address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLiquidityEvent(tt.log)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %q, want it to contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.SignedAmount().Int64() != tt.wantSigned {
				t.Errorf("SignedAmount = %s, want %d", got.SignedAmount(), tt.wantSigned)
			}
			if got.EventKey() != tt.log.Key {
				t.Errorf("EventKey = %s, want %s", got.EventKey(), tt.log.Key)
			}
		})
	}
}

func TestLiquidityEvent_SameAs(t *testing.T) {
	a := LiquidityEvent{Key: EventKey{1, 0, 0}, Kind: LiquidityAdded, Asset: testAsset, Provider: testProvider, Amount: big.NewInt(5), LPTokens: big.NewInt(5)}
	b := a
	b.Amount = big.NewInt(5)
	if !a.SameAs(b) {
		t.Error("events with equal values should be the same")
	}
	b.Amount = big.NewInt(6)
	if a.SameAs(b) {
		t.Error("events with different amounts should differ")
	}
}

func TestReduceLiquidityEvents(t *testing.T) {
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	events := []LiquidityEvent{
		{Key: EventKey{101, 0, 0}, Kind: LiquidityAdded, Asset: testAsset, Provider: testProvider, Amount: big.NewInt(50), LPTokens: big.NewInt(50)},
		{Key: EventKey{101, 0, 1}, Kind: LiquidityAdded, Asset: testAsset, Provider: testProvider, Amount: big.NewInt(30), LPTokens: big.NewInt(30)},
		{Key: EventKey{102, 0, 0}, Kind: LiquidityRemoved, Asset: testAsset, Provider: testProvider, Amount: big.NewInt(10), LPTokens: big.NewInt(10)},
		{Key: EventKey{103, 0, 0}, Kind: LiquidityAdded, Asset: testAsset, Provider: other, Amount: big.NewInt(7), LPTokens: big.NewInt(7)},
	}

	state := ReduceLiquidityEvents(events)

	if got := state.Balance(testAsset, testProvider); got.Int64() != 70 {
		t.Errorf("provider balance = %s, want 70", got)
	}
	if got := state.Balance(testAsset, other); got.Int64() != 7 {
		t.Errorf("other balance = %s, want 7", got)
	}
	if got := state.Balance(other, testProvider); got.Sign() != 0 {
		t.Errorf("unknown asset balance = %s, want 0", got)
	}

	// Balance must hand out copies.
	state.Balance(testAsset, testProvider).SetInt64(0)
	if got := state.Balance(testAsset, testProvider); got.Int64() != 70 {
		t.Errorf("balance mutated through returned value: %s", got)
	}
}
