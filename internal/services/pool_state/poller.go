package pool_state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
)

var _ inbound.HealthChecker = (*Poller)(nil)

type PollerConfig struct {
	// Interval between refresh cycles. A failed refresh is retried on the next cycle.
	Interval time.Duration

	// Assets whose pool snapshots are refreshed every cycle.
	Assets []common.Address

	// Users whose snapshots are refreshed in every asset every cycle.
	Users []common.Address

	// MaxConcurrentUsers bounds user refreshes running at once.
	MaxConcurrentUsers int

	// StaleAfter is how long after the last completed cycle the poller stops
	// reporting healthy. Defaults to three intervals.
	StaleAfter time.Duration

	Logger *slog.Logger
}

func PollerConfigDefaults() PollerConfig {
	return PollerConfig{
		Interval:           time.Minute,
		MaxConcurrentUsers: 4,
		Logger:             slog.Default(),
	}
}

// Poller refreshes a fixed set of pools and users on a ticker.
type Poller struct {
	config    PollerConfig
	refresher inbound.PoolStateRefresher
	logger    *slog.Logger

	lastCycle atomic.Int64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPoller(config PollerConfig, refresher inbound.PoolStateRefresher) (*Poller, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if len(config.Assets) == 0 {
		return nil, fmt.Errorf("at least one asset is required")
	}

	defaults := PollerConfigDefaults()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxConcurrentUsers <= 0 {
		config.MaxConcurrentUsers = defaults.MaxConcurrentUsers
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 3 * config.Interval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Poller{
		config:    config,
		refresher: refresher,
		logger:    config.Logger.With("component", "pool-state-poller"),
	}, nil
}

// Start runs one cycle immediately and then one per interval until Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.processLoop()

	p.logger.Info("pool state poller started",
		"interval", p.config.Interval,
		"assets", len(p.config.Assets),
		"users", len(p.config.Users))
	return nil
}

func (p *Poller) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("pool state poller stopped")
	return nil
}

func (p *Poller) processLoop() {
	defer p.wg.Done()

	p.RunCycle(p.ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(p.ctx)
		}
	}
}

// RunCycle refreshes every configured pool, then every configured user in
// every configured asset. It returns the number of failed refreshes.
func (p *Poller) RunCycle(ctx context.Context) int {
	start := time.Now()
	var failed atomic.Int64

	for _, asset := range p.config.Assets {
		if ctx.Err() != nil {
			return int(failed.Load())
		}
		if result := p.refresher.RefreshPool(ctx, asset, entity.BlockOverride{}); !result.Succeeded() {
			failed.Add(1)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(p.config.MaxConcurrentUsers)
	for _, asset := range p.config.Assets {
		for _, user := range p.config.Users {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if result := p.refresher.RefreshUser(ctx, user, asset); !result.Succeeded() {
					failed.Add(1)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if ctx.Err() == nil {
		p.lastCycle.Store(time.Now().UnixNano())
	}

	n := int(failed.Load())
	p.logger.Info("refresh cycle completed",
		"duration", time.Since(start),
		"failed", n)
	return n
}

// IsReady reports whether a full cycle has completed.
func (p *Poller) IsReady() bool {
	return p.lastCycle.Load() != 0
}

// IsHealthy reports whether a cycle completed within StaleAfter.
func (p *Poller) IsHealthy() bool {
	last := p.lastCycle.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) <= p.config.StaleAfter
}
