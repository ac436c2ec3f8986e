// Package pool_state reconstructs the economic state of a hub pool and of each
// depositor's position in it.
//
// Pool snapshots join live contract reads (exchange rates, reserves,
// utilization) with an optional rate model. User snapshots additionally replay
// the pool's liquidity events, the user's LP token transfers and the reward
// distributor's stake and claim history.
//
// Every refresh either produces a complete snapshot or fails without touching
// the previously stored one. Identical refreshes in flight at the same time are
// coalesced, and each tracker serializes its own reads.
package pool_state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/eventledger"
	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

const instrumentationName = "github.com/archon-research/stl/pool-state/internal/services/pool_state"

var (
	// ErrAmbiguousReceipt is returned when a receipt's liquidity events do not
	// reference exactly one asset.
	ErrAmbiguousReceipt = errors.New("receipt does not reference exactly one asset")

	// ErrUnknownAsset is returned when the hub pool has no LP token for an asset.
	ErrUnknownAsset = errors.New("asset is not pooled in the hub pool")

	// ErrRateModelUnavailable marks the warning of a degraded pool snapshot.
	ErrRateModelUnavailable = errors.New("rate model unavailable")
)

type Config struct {
	// HubPool is the pool contract emitting liquidity events.
	HubPool common.Address

	// Distributor is the staking contract LP tokens move to and from when
	// users stake. Transfers involving it are not peer transfers.
	Distributor common.Address

	// DeployBlock is the first block event scans start from.
	DeployBlock uint64

	// BlockDelta is how far behind the latest block the previous exchange rate
	// is read when no previous block is given.
	BlockDelta uint64

	// ArchiveAccess enables revaluing peer transfers at historical exchange
	// rates. Without it transfers contribute no value.
	ArchiveAccess bool

	// MaxConcurrentReads bounds parallel historical rate reads.
	MaxConcurrentReads int

	Logger *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		BlockDelta:         10,
		MaxConcurrentReads: 8,
		Logger:             slog.Default(),
	}
}

var _ inbound.PoolStateRefresher = (*Service)(nil)

type trackerKey struct {
	asset common.Address
	user  common.Address
}

// Service is the state orchestrator. It owns the trackers, the exchange rate
// cache and the last snapshot of every asset and depositor.
type Service struct {
	config      Config
	ledger      outbound.LedgerReader
	pool        outbound.PoolReader
	distributor outbound.DistributorReader
	rateModels  outbound.RateModelProvider
	sink        outbound.SnapshotSink
	rateStore   outbound.RateStore
	metrics     outbound.MetricsRecorder
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time

	poolEvents *poolEventTracker
	rates      *rateCache
	flights    singleflight.Group

	mu            sync.RWMutex
	transfers     map[trackerKey]*transferTracker
	poolSnapshots map[common.Address]entity.PoolSnapshot
	userSnapshots map[trackerKey]entity.UserSnapshot
}

// NewService wires the orchestrator. rateModels, rateStore and metrics may be
// nil: without a rate model provider no APR is projected, without a rate store
// historical rates live only in memory.
func NewService(
	config Config,
	ledger outbound.LedgerReader,
	pool outbound.PoolReader,
	distributor outbound.DistributorReader,
	rateModels outbound.RateModelProvider,
	sink outbound.SnapshotSink,
	rateStore outbound.RateStore,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if err := validateDependencies(ledger, pool, distributor, sink); err != nil {
		return nil, err
	}
	if config.HubPool == (common.Address{}) {
		return nil, fmt.Errorf("hub pool address is required")
	}

	defaults := ConfigDefaults()
	if config.BlockDelta == 0 {
		config.BlockDelta = defaults.BlockDelta
	}
	if config.MaxConcurrentReads <= 0 {
		config.MaxConcurrentReads = defaults.MaxConcurrentReads
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := config.Logger.With("component", "pool-state")

	return &Service{
		config:        config,
		ledger:        ledger,
		pool:          pool,
		distributor:   distributor,
		rateModels:    rateModels,
		sink:          sink,
		rateStore:     rateStore,
		metrics:       metrics,
		tracer:        otel.Tracer(instrumentationName),
		logger:        logger,
		now:           time.Now,
		poolEvents:    newPoolEventTracker(ledger, config.HubPool, config.DeployBlock, metrics, logger),
		rates:         newRateCache(),
		transfers:     make(map[trackerKey]*transferTracker),
		poolSnapshots: make(map[common.Address]entity.PoolSnapshot),
		userSnapshots: make(map[trackerKey]entity.UserSnapshot),
	}, nil
}

// RefreshPool rebuilds the pool snapshot of asset and emits the outcome.
func (s *Service) RefreshPool(ctx context.Context, asset common.Address, override entity.BlockOverride) entity.RefreshResult {
	key := fmt.Sprintf("pool:%s:%d:%d", asset.Hex(), override.Latest, override.Previous)
	v, _, _ := s.flights.Do(key, func() (any, error) {
		return s.run(ctx, "RefreshPool", entity.PoolPath(asset), func(ctx context.Context) (entity.RefreshResult, error) {
			return s.buildPoolSnapshot(ctx, asset, override)
		}), nil
	})
	return v.(entity.RefreshResult)
}

// RefreshUser rebuilds the pool snapshot of asset at the chain head, then the
// position of user in it, and emits both outcomes.
func (s *Service) RefreshUser(ctx context.Context, user, asset common.Address) entity.RefreshResult {
	key := fmt.Sprintf("user:%s:%s", asset.Hex(), user.Hex())
	v, _, _ := s.flights.Do(key, func() (any, error) {
		return s.run(ctx, "RefreshUser", entity.UserPath(user, asset), func(ctx context.Context) (entity.RefreshResult, error) {
			head, err := s.ledger.BlockByNumber(ctx, nil)
			if err != nil {
				return entity.RefreshResult{}, fmt.Errorf("failed to read chain head: %w", err)
			}
			snapshot, err := s.buildUserSnapshot(ctx, user, asset, head.Number)
			if err != nil {
				return entity.RefreshResult{}, err
			}
			return entity.UserResult(snapshot, nil), nil
		}), nil
	})
	return v.(entity.RefreshResult)
}

// RefreshUserFromReceipt refreshes user right after a known liquidity
// transaction, at the transaction's block. The asset is taken from the
// receipt, which must reference exactly one.
func (s *Service) RefreshUserFromReceipt(ctx context.Context, user common.Address, receipt entity.Receipt) entity.RefreshResult {
	asset, err := s.poolEvents.ResolveAssetFromReceipt(receipt)
	if err != nil {
		result := entity.FailedResult(entity.UserPath(user, common.Address{}), err)
		s.publish(ctx, result)
		return result
	}

	key := fmt.Sprintf("user:%s:%s:%s", asset.Hex(), user.Hex(), receipt.TxHash.Hex())
	v, _, _ := s.flights.Do(key, func() (any, error) {
		return s.run(ctx, "RefreshUserFromReceipt", entity.UserPath(user, asset), func(ctx context.Context) (entity.RefreshResult, error) {
			if _, err := s.poolEvents.ReadFromReceipt(ctx, receipt); err != nil {
				return entity.RefreshResult{}, err
			}
			snapshot, err := s.buildUserSnapshot(ctx, user, asset, receipt.BlockNumber)
			if err != nil {
				return entity.RefreshResult{}, err
			}
			return entity.UserResult(snapshot, nil), nil
		}), nil
	})
	return v.(entity.RefreshResult)
}

// PoolSnapshot returns the last successful snapshot of asset.
func (s *Service) PoolSnapshot(asset common.Address) (entity.PoolSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.poolSnapshots[asset]
	return snapshot, ok
}

// UserSnapshot returns the last successful snapshot of user in asset.
func (s *Service) UserSnapshot(user, asset common.Address) (entity.UserSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.userSnapshots[trackerKey{asset: asset, user: user}]
	return snapshot, ok
}

// run executes one refresh inside a span, stores a successful snapshot and
// emits the outcome.
func (s *Service) run(ctx context.Context, op, path string, refresh func(context.Context) (entity.RefreshResult, error)) entity.RefreshResult {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pool_state."+op, trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	result, err := refresh(ctx)
	if err != nil {
		result = entity.FailedResult(path, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.store(result)
	s.publish(ctx, result)
	s.metrics.RecordRefresh(ctx, result.Kind(), result.Status.String(), time.Since(start))

	switch result.Status {
	case entity.RefreshOK:
		s.logger.Debug("refresh completed", "op", op, "path", path, "duration", time.Since(start))
	case entity.RefreshDegraded:
		s.logger.Warn("refresh degraded", "op", op, "path", path, "warning", result.Warning)
	default:
		s.logger.Error("refresh failed", "op", op, "path", path, "error", result.Err)
	}
	return result
}

// store keeps the newest successful snapshot per key. A refresh pinned to an
// older block, such as one driven by a late receipt, is still emitted but does
// not replace a snapshot taken at a later block.
func (s *Service) store(result entity.RefreshResult) {
	if !result.Succeeded() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p := result.Pool; p != nil {
		if prev, ok := s.poolSnapshots[p.Asset]; !ok || prev.LatestBlock <= p.LatestBlock {
			s.poolSnapshots[p.Asset] = *p
		}
	}
	if u := result.User; u != nil {
		k := trackerKey{asset: u.Asset, user: u.User}
		if prev, ok := s.userSnapshots[k]; !ok || prev.Block <= u.Block {
			s.userSnapshots[k] = *u
		}
	}
}

func (s *Service) publish(ctx context.Context, result entity.RefreshResult) {
	if err := s.sink.Emit(ctx, result); err != nil {
		s.logger.Error("failed to emit refresh result", "path", result.Path, "status", result.Status.String(), "error", err)
	}
}

func (s *Service) buildPoolSnapshot(ctx context.Context, asset common.Address, override entity.BlockOverride) (entity.RefreshResult, error) {
	var latest entity.BlockInfo
	var err error
	if override.Latest != 0 {
		latest, err = s.ledger.BlockByNumber(ctx, &override.Latest)
	} else {
		latest, err = s.ledger.BlockByNumber(ctx, nil)
	}
	if err != nil {
		return entity.RefreshResult{}, fmt.Errorf("failed to read latest block: %w", err)
	}

	previousNumber := override.Previous
	if previousNumber > latest.Number {
		return entity.RefreshResult{}, fmt.Errorf("previous block %d is after latest block %d", previousNumber, latest.Number)
	}
	if previousNumber == 0 {
		if latest.Number > s.config.BlockDelta {
			previousNumber = latest.Number - s.config.BlockDelta
		}
	}

	var (
		previous     entity.BlockInfo
		reads        entity.PoolReads
		previousRate *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if previous, err = s.ledger.BlockByNumber(gctx, &previousNumber); err != nil {
			return fmt.Errorf("failed to read block %d: %w", previousNumber, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if reads, err = s.pool.PoolState(gctx, asset, latest.Number); err != nil {
			return fmt.Errorf("failed to read pool state of %s at block %d: %w", asset.Hex(), latest.Number, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if previousRate, err = s.pool.ExchangeRateAt(gctx, asset, previousNumber); err != nil {
			return fmt.Errorf("failed to read exchange rate of %s at block %d: %w", asset.Hex(), previousNumber, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return entity.RefreshResult{}, err
	}
	if reads.LPToken == (common.Address{}) {
		return entity.RefreshResult{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}

	s.rates.Fill(asset, map[uint64]*big.Int{
		latest.Number:   reads.ExchangeRate,
		previous.Number: previousRate,
	})

	model, warning := s.fetchRateModel(ctx, asset)

	snapshot := joinPool(poolJoin{
		asset:        asset,
		latest:       latest,
		previous:     previous,
		current:      reads,
		previousRate: previousRate,
		rateModel:    model,
		now:          s.now(),
	})
	return entity.PoolResult(snapshot, warning), nil
}

// fetchRateModel never fails the refresh; a failure comes back as a warning.
func (s *Service) fetchRateModel(ctx context.Context, asset common.Address) (*entity.RateModel, error) {
	if s.rateModels == nil {
		return nil, nil
	}
	model, err := s.rateModels.RateModel(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrRateModelUnavailable, asset.Hex(), err)
	}
	return &model, nil
}

func (s *Service) buildUserSnapshot(ctx context.Context, user, asset common.Address, block uint64) (*entity.UserSnapshot, error) {
	poolResult := s.RefreshPool(ctx, asset, entity.BlockOverride{Latest: block})
	if !poolResult.Succeeded() {
		return nil, fmt.Errorf("failed to refresh pool: %w", poolResult.Err)
	}
	pool := poolResult.Pool
	tracker := s.transferTracker(asset, pool.LPToken, user)

	var (
		deposited *big.Int
		transfers TransferRead
		staked    *big.Int
		claims    []entity.ClaimEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		state, err := s.poolEvents.ReadRange(gctx, block, liquidityFilter{asset: asset, user: user})
		if err != nil {
			return err
		}
		deposited = state.Balance(asset, user)
		return nil
	})
	g.Go(func() error {
		var err error
		transfers, err = tracker.Read(gctx, block)
		return err
	})
	g.Go(func() error {
		var err error
		if staked, err = s.distributor.CumulativeStake(gctx, pool.LPToken, user, block); err != nil {
			return fmt.Errorf("failed to read stake of %s: %w", user.Hex(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if claims, err = s.distributor.Claims(gctx, user, pool.LPToken, block); err != nil {
			return fmt.Errorf("failed to read claims of %s: %w", user.Hex(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	airdropped, err := s.valueClaims(ctx, asset, claims)
	if err != nil {
		return nil, err
	}

	transferValue := new(big.Int)
	if s.config.ArchiveAccess {
		if transferValue, err = s.valueTransfers(ctx, asset, user, transfers.Transfers); err != nil {
			return nil, err
		}
	}

	return joinUser(userJoin{
		user:          user,
		pool:          pool,
		deposited:     deposited,
		transfers:     transfers,
		staked:        staked,
		airdropped:    airdropped,
		transferValue: transferValue,
		now:           s.now(),
	}), nil
}

// valueClaims sums claimed LP tokens valued at the exchange rate of the block
// each claim was made in.
func (s *Service) valueClaims(ctx context.Context, asset common.Address, claims []entity.ClaimEvent) (*big.Int, error) {
	ordered := eventledger.New[entity.ClaimEvent]()
	if _, err := ordered.InsertAll(claims); err != nil {
		return nil, fmt.Errorf("claims: %w", err)
	}
	claims = ordered.Events()

	blocks := make([]uint64, len(claims))
	for i, c := range claims {
		blocks[i] = c.Key.BlockNumber
	}
	rates, err := s.historicalRates(ctx, asset, blocks)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, c := range claims {
		rate, ok := rates[c.Key.BlockNumber]
		if !ok {
			return nil, fmt.Errorf("no exchange rate of %s at block %d", asset.Hex(), c.Key.BlockNumber)
		}
		total.Add(total, valueAt(rate, c.Amount))
	}
	return total, nil
}

// valueTransfers sums the user's signed peer transfers valued at the exchange
// rate of the block each transfer happened in.
func (s *Service) valueTransfers(ctx context.Context, asset, user common.Address, transfers []entity.TransferEvent) (*big.Int, error) {
	blocks := make([]uint64, len(transfers))
	for i, t := range transfers {
		blocks[i] = t.Key.BlockNumber
	}
	rates, err := s.historicalRates(ctx, asset, blocks)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, t := range transfers {
		rate, ok := rates[t.Key.BlockNumber]
		if !ok {
			return nil, fmt.Errorf("no exchange rate of %s at block %d", asset.Hex(), t.Key.BlockNumber)
		}
		total.Add(total, valueAt(rate, t.SignedValue(user)))
	}
	return total, nil
}

// historicalRates resolves the exchange rate of asset at each block, reading
// only blocks missing from the cache and the rate store, one read per block.
func (s *Service) historicalRates(ctx context.Context, asset common.Address, blocks []uint64) (map[uint64]*big.Int, error) {
	missing := s.rates.Missing(asset, blocks)

	if len(missing) > 0 && s.rateStore != nil {
		stored, err := s.rateStore.LoadRates(ctx, asset, missing)
		if err != nil {
			s.logger.Warn("failed to load stored exchange rates", "asset", asset.Hex(), "error", err)
		} else if len(stored) > 0 {
			s.rates.Fill(asset, stored)
			missing = s.rates.Missing(asset, blocks)
		}
	}

	fetched := make(map[uint64]*big.Int, len(missing))
	if len(missing) > 0 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.MaxConcurrentReads)
		for _, block := range missing {
			g.Go(func() error {
				rate, err := s.pool.ExchangeRateAt(gctx, asset, block)
				if err != nil {
					return fmt.Errorf("failed to read exchange rate of %s at block %d: %w", asset.Hex(), block, err)
				}
				mu.Lock()
				fetched[block] = rate
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		s.logger.Debug("fetched historical exchange rates", "asset", asset.Hex(), "count", len(fetched))
	}

	merged := s.rates.Fill(asset, fetched)

	if len(fetched) > 0 && s.rateStore != nil {
		if err := s.rateStore.SaveRates(ctx, asset, fetched); err != nil {
			s.logger.Warn("failed to store exchange rates", "asset", asset.Hex(), "error", err)
		}
	}
	return merged, nil
}

// transferTracker returns the tracker of (asset, user), creating it on first use.
func (s *Service) transferTracker(asset, lpToken, user common.Address) *transferTracker {
	key := trackerKey{asset: asset, user: user}

	s.mu.RLock()
	tracker, ok := s.transfers[key]
	s.mu.RUnlock()
	if ok {
		return tracker
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tracker, ok := s.transfers[key]; ok {
		return tracker
	}
	tracker = newTransferTracker(s.ledger, s.pool, lpToken, user, s.config.Distributor, s.config.DeployBlock, s.metrics, s.logger)
	s.transfers[key] = tracker
	s.logger.Info("created transfer tracker", "asset", asset.Hex(), "user", user.Hex())
	return tracker
}

func validateDependencies(
	ledger outbound.LedgerReader,
	pool outbound.PoolReader,
	distributor outbound.DistributorReader,
	sink outbound.SnapshotSink,
) error {
	if ledger == nil {
		return fmt.Errorf("ledger reader is required")
	}
	if pool == nil {
		return fmt.Errorf("pool reader is required")
	}
	if distributor == nil {
		return fmt.Errorf("distributor reader is required")
	}
	if sink == nil {
		return fmt.Errorf("snapshot sink is required")
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordRefresh(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordEventsIngested(context.Context, string, int)            {}
