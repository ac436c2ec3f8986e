package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/services/pool_state"
	"github.com/archon-research/stl/pool-state/internal/testutil"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
)

type mockRefresher struct {
	RefreshPoolFn func(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult
	RefreshUserFn func(ctx context.Context, user, asset common.Address) entity.RefreshResult
}

func (m *mockRefresher) RefreshPool(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult {
	return m.RefreshPoolFn(ctx, asset, override)
}

func (m *mockRefresher) RefreshUser(ctx context.Context, user, asset common.Address) entity.RefreshResult {
	return m.RefreshUserFn(ctx, user, asset)
}

func (m *mockRefresher) RefreshUserFromReceipt(ctx context.Context, user common.Address, receipt entity.Receipt) entity.RefreshResult {
	panic("not used by the HTTP handler")
}

func newTestMux(t *testing.T, reader outbound.SnapshotReader, refresher inbound.PoolStateRefresher) *http.ServeMux {
	t.Helper()
	h, err := NewHandler(reader, refresher, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewHandler_RequiresReader(t *testing.T) {
	if _, err := NewHandler(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil reader")
	}
}

func TestHandler_GetPool(t *testing.T) {
	sink := memory.NewSnapshotSink()
	_ = sink.Emit(context.Background(), entity.PoolResult(testutil.SamplePoolSnapshot(weth, 20_000_000), nil))
	mux := newTestMux(t, sink, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"stored snapshot", "/pools/" + weth.Hex(), http.StatusOK},
		{"lowercase address", "/pools/0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", http.StatusOK},
		{"no snapshot", "/pools/0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", http.StatusNotFound},
		{"invalid address", "/pools/not-an-address", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, "GET", tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var msg outbound.PoolSnapshotMessage
			if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Asset != weth.Hex() || msg.LatestBlock != 20_000_000 {
				t.Errorf("unexpected body: %+v", msg)
			}
			if msg.LiquidReserves != testutil.Ether(6000).String() {
				t.Errorf("LiquidReserves = %s", msg.LiquidReserves)
			}
		})
	}
}

func TestHandler_GetUser(t *testing.T) {
	sink := memory.NewSnapshotSink()
	_ = sink.Emit(context.Background(), entity.UserResult(testutil.SampleUserSnapshot(alice, weth, 100), nil))
	mux := newTestMux(t, sink, nil)

	w := serve(mux, "GET", fmt.Sprintf("/users/%s/pools/%s", alice.Hex(), weth.Hex()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var msg outbound.UserSnapshotMessage
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.User != alice.Hex() || msg.TransferValue != testutil.Ether(-2).String() {
		t.Errorf("unexpected body: %+v", msg)
	}

	bob := common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	if w := serve(mux, "GET", fmt.Sprintf("/users/%s/pools/%s", bob.Hex(), weth.Hex())); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
}

type failingReader struct{}

func (failingReader) LatestPoolSnapshot(context.Context, common.Address) (*entity.PoolSnapshot, error) {
	return nil, errors.New("connection refused")
}

func (failingReader) LatestUserSnapshot(context.Context, common.Address, common.Address) (*entity.UserSnapshot, error) {
	return nil, errors.New("connection refused")
}

func TestHandler_ReaderError(t *testing.T) {
	mux := newTestMux(t, failingReader{}, nil)
	if w := serve(mux, "GET", "/pools/"+weth.Hex()); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandler_RefreshRoutesNeedRefresher(t *testing.T) {
	mux := newTestMux(t, memory.NewSnapshotSink(), nil)
	if w := serve(mux, "POST", "/pools/"+weth.Hex()+"/refresh"); w.Code == http.StatusOK {
		t.Error("refresh route should not be registered without a refresher")
	}
}

func TestHandler_RefreshPool(t *testing.T) {
	var got entity.BlockOverride
	refresher := &mockRefresher{
		RefreshPoolFn: func(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult {
			got = override
			switch asset {
			case weth:
				return entity.PoolResult(testutil.SamplePoolSnapshot(asset, 20_000_000), nil)
			case alice:
				return entity.FailedResult(entity.PoolPath(asset), fmt.Errorf("refresh: %w", pool_state.ErrUnknownAsset))
			default:
				return entity.FailedResult(entity.PoolPath(asset), errors.New("rpc down"))
			}
		},
	}
	mux := newTestMux(t, memory.NewSnapshotSink(), refresher)

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantOverride entity.BlockOverride
	}{
		{"head", "/pools/" + weth.Hex() + "/refresh", http.StatusOK, entity.BlockOverride{}},
		{"pinned blocks", "/pools/" + weth.Hex() + "/refresh?latest=200&previous=100", http.StatusOK, entity.BlockOverride{Latest: 200, Previous: 100}},
		{"unknown asset", "/pools/" + alice.Hex() + "/refresh", http.StatusNotFound, entity.BlockOverride{}},
		{"chain failure", "/pools/0x0000000000000000000000000000000000000001/refresh", http.StatusBadGateway, entity.BlockOverride{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = entity.BlockOverride{}
			w := serve(mux, "POST", tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body)
			}
			if got != tt.wantOverride {
				t.Errorf("override = %+v, want %+v", got, tt.wantOverride)
			}
			var msg outbound.SnapshotMessage
			if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.MessageID == "" || msg.Kind != "pool" {
				t.Errorf("unexpected envelope: %+v", msg)
			}
			if (tt.wantStatus == http.StatusOK) != (msg.Pool != nil) {
				t.Errorf("pool payload presence mismatch: %+v", msg)
			}
		})
	}
}

func TestHandler_RefreshPoolRejectsBadBlocks(t *testing.T) {
	refresher := &mockRefresher{
		RefreshPoolFn: func(context.Context, common.Address, entity.BlockOverride) entity.RefreshResult {
			t.Fatal("refresher must not be called")
			return entity.RefreshResult{}
		},
	}
	mux := newTestMux(t, memory.NewSnapshotSink(), refresher)

	for _, query := range []string{"?latest=abc", "?previous=-1", "?latest=100&previous=200"} {
		if w := serve(mux, "POST", "/pools/"+weth.Hex()+"/refresh"+query); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, w.Code)
		}
	}
}

func TestHandler_RefreshUser(t *testing.T) {
	refresher := &mockRefresher{
		RefreshUserFn: func(ctx context.Context, user, asset common.Address) entity.RefreshResult {
			return entity.UserResult(testutil.SampleUserSnapshot(user, asset, 100), errors.New("claims unavailable"))
		},
	}
	mux := newTestMux(t, memory.NewSnapshotSink(), refresher)

	w := serve(mux, "POST", fmt.Sprintf("/users/%s/pools/%s/refresh", alice.Hex(), weth.Hex()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var msg outbound.SnapshotMessage
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Status != "degraded" || msg.Warning != "claims unavailable" || msg.User == nil {
		t.Errorf("unexpected body: %+v", msg)
	}

	if w := serve(mux, "POST", "/users/bob/pools/"+weth.Hex()+"/refresh"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad user, got %d", w.Code)
	}
}

func TestHealthServer_ServesHandlerRoutes(t *testing.T) {
	sink := memory.NewSnapshotSink()
	_ = sink.Emit(context.Background(), entity.PoolResult(testutil.SamplePoolSnapshot(weth, 1), nil))
	h, err := NewHandler(sink, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	var shuttingDown atomic.Bool
	hs := NewHealthServer(HealthServerConfig{Addr: ":0", Handler: h}, &mockHealthChecker{ready: true, healthy: true}, &shuttingDown)

	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/pools/"+weth.Hex(), nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected ready 200, got %d", w.Code)
	}
}
