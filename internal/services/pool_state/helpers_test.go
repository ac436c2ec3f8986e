package pool_state

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/testutil"
)

var (
	hubPool     = common.HexToAddress("0xc186fA914353c44b2E33eBE05f21846F1048bEda")
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc        = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	lpWeth      = common.HexToAddress("0x28F77208728B0A45cAb24c4868334581Fe86F95B")
	distributor = common.HexToAddress("0x9040e41eF5E8b281535a96D9a48aCb8cfaBD9a48")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol       = common.HexToAddress("0x00000000000000000000000000000000000CA401")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func key(block uint64, tx, log uint32) entity.EventKey {
	return entity.EventKey{BlockNumber: block, TxIndex: tx, LogIndex: log}
}

// rateAt is the synthetic exchange rate at block: 1 + block/1000.
func rateAt(block uint64) *big.Int {
	r := new(big.Int).Mul(big.NewInt(int64(block)), big.NewInt(1_000_000_000_000_000))
	return r.Add(r, entity.WeiPerEther)
}

func eth(pct int64) *big.Int {
	v := new(big.Int).Mul(entity.WeiPerEther, big.NewInt(pct))
	return v.Quo(v, big.NewInt(100))
}

func defaultPoolReader() *testutil.MockPoolReader {
	return &testutil.MockPoolReader{
		PoolStateFn: func(ctx context.Context, asset common.Address, block uint64) (entity.PoolReads, error) {
			return entity.PoolReads{
				Block:                block,
				LPToken:              lpWeth,
				IsEnabled:            true,
				ExchangeRate:         rateAt(block),
				LiquidReserves:       testutil.Ether(600),
				UtilizedReserves:     testutil.Ether(400),
				UndistributedLpFees:  testutil.Ether(1),
				LiquidityUtilization: eth(40),
			}, nil
		},
		ExchangeRateAtFn: func(ctx context.Context, asset common.Address, block uint64) (*big.Int, error) {
			return rateAt(block), nil
		},
		BalanceOfFn: func(ctx context.Context, token, account common.Address, block uint64) (*big.Int, error) {
			return new(big.Int), nil
		},
	}
}

func testRateModel() entity.RateModel {
	return entity.RateModel{UBar: eth(65), R0: eth(0), R1: eth(8), R2: eth(100)}
}

type fixture struct {
	ledger      *testutil.MockLedgerReader
	pool        *testutil.MockPoolReader
	distributor *testutil.MockDistributorReader
	rateModels  *testutil.MockRateModelProvider
	sink        *memory.SnapshotSink
	rateStore   *memory.RateStore
	service     *Service
}

func newFixture(t *testing.T, head uint64, configure func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		ledger:      testutil.NewMockLedgerReader(head),
		pool:        defaultPoolReader(),
		distributor: &testutil.MockDistributorReader{},
		rateModels: &testutil.MockRateModelProvider{
			RateModelFn: func(ctx context.Context, asset common.Address) (entity.RateModel, error) {
				return testRateModel(), nil
			},
		},
		sink:      memory.NewSnapshotSink(),
		rateStore: memory.NewRateStore(),
	}

	config := Config{
		HubPool:     hubPool,
		Distributor: distributor,
		DeployBlock: 100,
		Logger:      discardLogger(),
	}
	if configure != nil {
		configure(&config)
	}

	svc, err := NewService(config, f.ledger, f.pool, f.distributor, f.rateModels, f.sink, f.rateStore, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.service = svc
	return f
}

func assertBig(t *testing.T, name string, got, want *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(want) != 0 {
		t.Errorf("%s = %v, want %s", name, got, want)
	}
}
