package pool_state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
)

type fakeRefresher struct {
	mu        sync.Mutex
	pools     []common.Address
	users     []common.Address
	failPools map[common.Address]bool
}

func (r *fakeRefresher) RefreshPool(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = append(r.pools, asset)
	if r.failPools[asset] {
		return entity.FailedResult(entity.PoolPath(asset), errors.New("boom"))
	}
	return entity.PoolResult(&entity.PoolSnapshot{Asset: asset}, nil)
}

func (r *fakeRefresher) RefreshUser(ctx context.Context, user, asset common.Address) entity.RefreshResult {
	r.mu.Lock()
	r.users = append(r.users, user)
	r.mu.Unlock()
	if r.failPools[asset] {
		return entity.FailedResult(entity.UserPath(user, asset), errors.New("boom"))
	}
	return entity.UserResult(&entity.UserSnapshot{User: user, Asset: asset}, nil)
}

func (r *fakeRefresher) RefreshUserFromReceipt(ctx context.Context, user common.Address, receipt entity.Receipt) entity.RefreshResult {
	return entity.FailedResult(entity.UserPath(user, common.Address{}), errors.New("not used"))
}

func (r *fakeRefresher) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools), len(r.users)
}

func TestNewPoller_Validation(t *testing.T) {
	if _, err := NewPoller(PollerConfig{Assets: []common.Address{weth}}, nil); err == nil || err.Error() != "refresher is required" {
		t.Errorf("err = %v, want refresher is required", err)
	}
	if _, err := NewPoller(PollerConfig{}, &fakeRefresher{}); err == nil || err.Error() != "at least one asset is required" {
		t.Errorf("err = %v, want at least one asset is required", err)
	}

	p, err := NewPoller(PollerConfig{Assets: []common.Address{weth}, Interval: time.Second, Logger: discardLogger()}, &fakeRefresher{})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	if p.config.StaleAfter != 3*time.Second {
		t.Errorf("StaleAfter = %v, want 3s", p.config.StaleAfter)
	}
	if p.config.MaxConcurrentUsers != 4 {
		t.Errorf("MaxConcurrentUsers = %d, want 4", p.config.MaxConcurrentUsers)
	}
}

func TestPoller_RunCycle(t *testing.T) {
	refresher := &fakeRefresher{failPools: map[common.Address]bool{usdc: true}}
	p, err := NewPoller(PollerConfig{
		Assets: []common.Address{weth, usdc},
		Users:  []common.Address{alice, bob, carol},
		Logger: discardLogger(),
	}, refresher)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	if p.IsReady() || p.IsHealthy() {
		t.Error("poller reports ready before its first cycle")
	}

	// usdc fails once as a pool and once per user
	if failed := p.RunCycle(context.Background()); failed != 4 {
		t.Errorf("failed = %d, want 4", failed)
	}
	pools, users := refresher.counts()
	if pools != 2 || users != 6 {
		t.Errorf("refreshed %d pools and %d users, want 2 and 6", pools, users)
	}
	if !p.IsReady() || !p.IsHealthy() {
		t.Error("poller not ready after a completed cycle")
	}
}

func TestPoller_CancelledCycleIsNotRecorded(t *testing.T) {
	refresher := &fakeRefresher{}
	p, err := NewPoller(PollerConfig{Assets: []common.Address{weth}, Logger: discardLogger()}, refresher)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.RunCycle(ctx)

	if pools, _ := refresher.counts(); pools != 0 {
		t.Errorf("refreshed %d pools after cancellation", pools)
	}
	if p.IsReady() {
		t.Error("cancelled cycle marked the poller ready")
	}
}

func TestPoller_StaleAfter(t *testing.T) {
	p, err := NewPoller(PollerConfig{
		Assets:     []common.Address{weth},
		StaleAfter: time.Minute,
		Logger:     discardLogger(),
	}, &fakeRefresher{})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	p.lastCycle.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	if !p.IsReady() {
		t.Error("poller not ready after a cycle")
	}
	if p.IsHealthy() {
		t.Error("poller healthy after missing cycles")
	}
}

func TestPoller_StartStop(t *testing.T) {
	refresher := &fakeRefresher{}
	p, err := NewPoller(PollerConfig{
		Assets:   []common.Address{weth},
		Interval: 10 * time.Millisecond,
		Logger:   discardLogger(),
	}, refresher)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if pools, _ := refresher.counts(); pools >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller did not run repeated cycles")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stopped, _ := refresher.counts()
	time.Sleep(30 * time.Millisecond)
	if after, _ := refresher.counts(); after != stopped {
		t.Errorf("poller kept refreshing after Stop: %d -> %d", stopped, after)
	}
}
