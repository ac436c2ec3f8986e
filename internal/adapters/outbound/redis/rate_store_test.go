package redis

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewRateStore_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		TTL:       time.Hour,
		KeyPrefix: "test",
		ChainID:   10,
	}

	store, err := NewRateStore(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if store.ttl != cfg.TTL {
		t.Errorf("expected TTL=%v, got %v", cfg.TTL, store.ttl)
	}
	if store.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, store.keyPrefix)
	}
	if store.chainID != 10 {
		t.Errorf("expected chainID=10, got %d", store.chainID)
	}
	if store.client == nil || store.logger == nil {
		t.Fatal("expected client and logger to be set")
	}
}

func TestNewRateStore_EmptyAddrReturnsError(t *testing.T) {
	_, err := NewRateStore(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for empty addr, got nil")
	}
	if !strings.Contains(err.Error(), "redis address is required") {
		t.Errorf("expected 'redis address is required' error, got %v", err)
	}
}

func TestNewRateStore_AppliesDefaults(t *testing.T) {
	store, err := NewRateStore(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	defaults := ConfigDefaults()
	if store.ttl != defaults.TTL {
		t.Errorf("expected TTL=%v, got %v", defaults.TTL, store.ttl)
	}
	if store.keyPrefix != "pool-state" {
		t.Errorf("expected keyPrefix=pool-state, got %s", store.keyPrefix)
	}
	if store.chainID != 1 {
		t.Errorf("expected chainID=1, got %d", store.chainID)
	}
}

func TestRateStore_Key(t *testing.T) {
	store, err := NewRateStore(Config{Addr: "localhost:6379", KeyPrefix: "test", ChainID: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	asset := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	want := "test:1:rates:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	if got := store.key(asset); got != want {
		t.Errorf("expected key %s, got %s", want, got)
	}
}

func TestRateStore_EmptyInputsSkipRedis(t *testing.T) {
	// Nothing listens on this port, so any round trip would fail.
	store, err := NewRateStore(Config{Addr: "127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	asset := common.HexToAddress("0x01")

	rates, err := store.LoadRates(ctx, asset, nil)
	if err != nil || len(rates) != 0 {
		t.Errorf("LoadRates(nil) = %v, %v", rates, err)
	}
	if err := store.SaveRates(ctx, asset, nil); err != nil {
		t.Errorf("SaveRates(nil) = %v", err)
	}
	if err := store.SaveRates(ctx, asset, map[uint64]*big.Int{1: nil}); err != nil {
		t.Errorf("SaveRates(nil rate) = %v", err)
	}
}
