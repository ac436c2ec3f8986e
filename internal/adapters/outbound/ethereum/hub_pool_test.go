package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/testutil"
)

func TestNewHubPoolReader_Validation(t *testing.T) {
	if _, err := NewHubPoolReader(nil, hubPool); err == nil || err.Error() != "multicaller is required" {
		t.Errorf("err = %v", err)
	}
	if _, err := NewHubPoolReader(testutil.NewMockMulticaller(), common.Address{}); err == nil || err.Error() != "hub pool address is required" {
		t.Errorf("err = %v", err)
	}
}

func TestHubPoolReader_PoolState(t *testing.T) {
	hubABI := mustABI(t, abis.GetHubPoolABI)
	r := newMethodResponder(t)
	r.on(hubABI, "pooledTokens", lpWeth, true, uint32(1_700_000_000), big.NewInt(400), testutil.Ether(600), big.NewInt(25))
	r.on(hubABI, "exchangeRateCurrent", testutil.Ether(1))
	r.on(hubABI, "liquidityUtilizationCurrent", big.NewInt(4e17))

	reader, err := NewHubPoolReader(r.multicaller(), hubPool)
	if err != nil {
		t.Fatalf("NewHubPoolReader: %v", err)
	}

	reads, err := reader.PoolState(context.Background(), weth, 1234)
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if reads.Block != 1234 || reads.LPToken != lpWeth || !reads.IsEnabled {
		t.Errorf("reads = %+v", reads)
	}
	if reads.ExchangeRate.Cmp(testutil.Ether(1)) != 0 {
		t.Errorf("ExchangeRate = %s", reads.ExchangeRate)
	}
	if reads.LiquidityUtilization.Cmp(big.NewInt(4e17)) != 0 {
		t.Errorf("LiquidityUtilization = %s", reads.LiquidityUtilization)
	}
	if reads.UtilizedReserves.Int64() != 400 || reads.LiquidReserves.Cmp(testutil.Ether(600)) != 0 || reads.UndistributedLpFees.Int64() != 25 {
		t.Errorf("reserves = %s / %s / %s", reads.UtilizedReserves, reads.LiquidReserves, reads.UndistributedLpFees)
	}
	if len(r.blocks()) != 1 || r.blocks()[0].Uint64() != 1234 {
		t.Errorf("expected one multicall at block 1234, got %v", r.blocks())
	}
}

func TestHubPoolReader_NegativeUtilizedReserves(t *testing.T) {
	hubABI := mustABI(t, abis.GetHubPoolABI)
	r := newMethodResponder(t)
	r.on(hubABI, "pooledTokens", lpWeth, true, uint32(0), big.NewInt(-50), big.NewInt(1000), big.NewInt(0))
	r.on(hubABI, "exchangeRateCurrent", testutil.Ether(1))
	r.on(hubABI, "liquidityUtilizationCurrent", big.NewInt(0))

	reader, _ := NewHubPoolReader(r.multicaller(), hubPool)
	reads, err := reader.PoolState(context.Background(), weth, 10)
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if reads.UtilizedReserves.Int64() != -50 {
		t.Errorf("UtilizedReserves = %s, want -50", reads.UtilizedReserves)
	}
}

func TestHubPoolReader_UnknownAsset(t *testing.T) {
	hubABI := mustABI(t, abis.GetHubPoolABI)
	r := newMethodResponder(t)
	r.on(hubABI, "pooledTokens", common.Address{}, false, uint32(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	r.revert(hubABI, "exchangeRateCurrent")
	r.revert(hubABI, "liquidityUtilizationCurrent")

	reader, _ := NewHubPoolReader(r.multicaller(), hubPool)
	reads, err := reader.PoolState(context.Background(), common.HexToAddress("0x1234"), 10)
	if err != nil {
		t.Fatalf("PoolState: %v", err)
	}
	if reads.LPToken != (common.Address{}) {
		t.Errorf("LPToken = %s, want zero", reads.LPToken.Hex())
	}
}

func TestHubPoolReader_RateRevertForKnownAsset(t *testing.T) {
	hubABI := mustABI(t, abis.GetHubPoolABI)
	r := newMethodResponder(t)
	r.on(hubABI, "pooledTokens", lpWeth, true, uint32(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	r.revert(hubABI, "exchangeRateCurrent")
	r.on(hubABI, "liquidityUtilizationCurrent", big.NewInt(0))

	reader, _ := NewHubPoolReader(r.multicaller(), hubPool)
	if _, err := reader.PoolState(context.Background(), weth, 10); err == nil || !strings.Contains(err.Error(), "reverted") {
		t.Errorf("err = %v, want reverted", err)
	}
}

func TestHubPoolReader_MulticallError(t *testing.T) {
	mc := testutil.NewMockMulticaller()
	mc.ExecuteFn = func(context.Context, []outbound.Call, *big.Int) ([]outbound.Result, error) {
		return nil, errors.New("node down")
	}
	reader, _ := NewHubPoolReader(mc, hubPool)
	if _, err := reader.PoolState(context.Background(), weth, 10); err == nil || err.Error() != "node down" {
		t.Errorf("err = %v", err)
	}
}

func TestHubPoolReader_SingleReads(t *testing.T) {
	hubABI := mustABI(t, abis.GetHubPoolABI)
	erc20ABI := mustABI(t, abis.GetERC20ABI)
	r := newMethodResponder(t)
	r.on(hubABI, "exchangeRateCurrent", big.NewInt(1_010_000_000_000_000_000))
	r.on(erc20ABI, "balanceOf", big.NewInt(3500))

	reader, _ := NewHubPoolReader(r.multicaller(), hubPool)
	ctx := context.Background()

	rate, err := reader.ExchangeRateAt(ctx, weth, 77)
	if err != nil {
		t.Fatalf("ExchangeRateAt: %v", err)
	}
	if rate.String() != "1010000000000000000" {
		t.Errorf("rate = %s", rate)
	}

	balance, err := reader.BalanceOf(ctx, lpWeth, alice, 78)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Int64() != 3500 {
		t.Errorf("balance = %s, want 3500", balance)
	}

	if len(r.blocks()) != 2 || r.blocks()[0].Uint64() != 77 || r.blocks()[1].Uint64() != 78 {
		t.Errorf("blocks = %v", r.blocks())
	}
}
