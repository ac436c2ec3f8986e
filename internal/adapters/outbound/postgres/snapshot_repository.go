package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time checks that SnapshotRepository implements the snapshot ports
var (
	_ outbound.SnapshotSink   = (*SnapshotRepository)(nil)
	_ outbound.SnapshotReader = (*SnapshotRepository)(nil)
)

// SnapshotRepository stores refresh results. Snapshots are upserted by block,
// so re-emitting a refresh at the same block overwrites the row. Degraded and
// failed refreshes additionally leave a row in refresh_warnings.
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	txm    outbound.TxManager
	config Config
	logger *slog.Logger
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository.
func NewSnapshotRepository(pool *pgxpool.Pool, txm outbound.TxManager, config Config) (*SnapshotRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if txm == nil {
		return nil, fmt.Errorf("transaction manager cannot be nil")
	}

	defaults := ConfigDefaults()
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &SnapshotRepository{
		pool:   pool,
		txm:    txm,
		config: config,
		logger: config.Logger.With("component", "snapshot-repository"),
	}, nil
}

// Emit writes the result and its warning row in one transaction.
func (r *SnapshotRepository) Emit(ctx context.Context, result entity.RefreshResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	err := r.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		switch {
		case result.Pool != nil:
			if err := upsertPoolSnapshot(ctx, tx, result); err != nil {
				return err
			}
		case result.User != nil:
			if err := upsertUserSnapshot(ctx, tx, result); err != nil {
				return err
			}
		}
		return insertWarning(ctx, tx, result)
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", result.Path, err)
	}

	r.logger.Debug("snapshot stored", "path", result.Path, "status", result.Status.String())
	return nil
}

// Close is a no-op. The pool is owned by the caller.
func (r *SnapshotRepository) Close() error {
	return nil
}

func upsertPoolSnapshot(ctx context.Context, tx pgx.Tx, result entity.RefreshResult) error {
	p := result.Pool
	_, err := tx.Exec(ctx, `
		INSERT INTO pool_snapshots (
			asset, latest_block, lp_token, previous_block,
			exchange_rate_current, exchange_rate_previous,
			liquid_reserves, utilized_reserves, undistributed_lp_fees,
			total_pool_size, liquidity_utilization,
			blocks_elapsed, seconds_elapsed,
			estimated_apy, estimated_apr, projected_apr,
			status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (asset, latest_block) DO UPDATE SET
			lp_token = EXCLUDED.lp_token,
			previous_block = EXCLUDED.previous_block,
			exchange_rate_current = EXCLUDED.exchange_rate_current,
			exchange_rate_previous = EXCLUDED.exchange_rate_previous,
			liquid_reserves = EXCLUDED.liquid_reserves,
			utilized_reserves = EXCLUDED.utilized_reserves,
			undistributed_lp_fees = EXCLUDED.undistributed_lp_fees,
			total_pool_size = EXCLUDED.total_pool_size,
			liquidity_utilization = EXCLUDED.liquidity_utilization,
			blocks_elapsed = EXCLUDED.blocks_elapsed,
			seconds_elapsed = EXCLUDED.seconds_elapsed,
			estimated_apy = EXCLUDED.estimated_apy,
			estimated_apr = EXCLUDED.estimated_apr,
			projected_apr = EXCLUDED.projected_apr,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		p.Asset.Bytes(), int64(p.LatestBlock), p.LPToken.Bytes(), int64(p.PreviousBlock),
		bigNumeric(p.ExchangeRateCurrent), bigNumeric(p.ExchangeRatePrevious),
		bigNumeric(p.LiquidReserves), bigNumeric(p.UtilizedReserves), bigNumeric(p.UndistributedLpFees),
		bigNumeric(p.TotalPoolSize), bigNumeric(p.LiquidityUtilization),
		int64(p.BlocksElapsed), int64(p.SecondsElapsed),
		decimalNumeric(p.EstimatedApy), decimalNumeric(p.EstimatedApr), optionalDecimalNumeric(p.ProjectedApr),
		result.Status.String(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pool snapshot: %w", err)
	}
	return nil
}

func upsertUserSnapshot(ctx context.Context, tx pgx.Tx, result entity.RefreshResult) error {
	u := result.User
	_, err := tx.Exec(ctx, `
		INSERT INTO user_snapshots (
			user_address, asset, block,
			lp_token_balance, staked_balance, position_value, total_deposited,
			airdrop_balance, transfer_value, net_balance_transferred, fees_earned,
			status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_address, asset, block) DO UPDATE SET
			lp_token_balance = EXCLUDED.lp_token_balance,
			staked_balance = EXCLUDED.staked_balance,
			position_value = EXCLUDED.position_value,
			total_deposited = EXCLUDED.total_deposited,
			airdrop_balance = EXCLUDED.airdrop_balance,
			transfer_value = EXCLUDED.transfer_value,
			net_balance_transferred = EXCLUDED.net_balance_transferred,
			fees_earned = EXCLUDED.fees_earned,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		u.User.Bytes(), u.Asset.Bytes(), int64(u.Block),
		bigNumeric(u.LPTokenBalance), bigNumeric(u.StakedBalance), bigNumeric(u.PositionValue), bigNumeric(u.TotalDeposited),
		bigNumeric(u.AirdropBalance), bigNumeric(u.TransferValue), bigNumeric(u.NetBalanceTransferred), bigNumeric(u.FeesEarned),
		result.Status.String(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user snapshot: %w", err)
	}
	return nil
}

// insertWarning records degraded and failed results. Ok results are skipped.
func insertWarning(ctx context.Context, tx pgx.Tx, result entity.RefreshResult) error {
	var cause error
	switch result.Status {
	case entity.RefreshDegraded:
		cause = result.Warning
	case entity.RefreshFailed:
		cause = result.Err
	}
	if cause == nil {
		return nil
	}

	var block pgtype.Int8
	switch {
	case result.Pool != nil:
		block = pgtype.Int8{Int64: int64(result.Pool.LatestBlock), Valid: true}
	case result.User != nil:
		block = pgtype.Int8{Int64: int64(result.User.Block), Valid: true}
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO refresh_warnings (path, status, block, message) VALUES ($1, $2, $3, $4)`,
		result.Path, result.Status.String(), block, cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh warning: %w", err)
	}
	return nil
}

// LatestPoolSnapshot returns the snapshot of asset at its highest stored block.
func (r *SnapshotRepository) LatestPoolSnapshot(ctx context.Context, asset common.Address) (*entity.PoolSnapshot, error) {
	var (
		lpToken                                  []byte
		latest, previous, blocks, seconds        int64
		rateCurrent, ratePrevious                string
		liquid, utilized, fees, total, utilRatio string
		apy, apr                                 string
		projected                                *string
		updatedAt                                time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT lp_token, latest_block, previous_block,
			exchange_rate_current::text, exchange_rate_previous::text,
			liquid_reserves::text, utilized_reserves::text, undistributed_lp_fees::text,
			total_pool_size::text, liquidity_utilization::text,
			blocks_elapsed, seconds_elapsed,
			estimated_apy::text, estimated_apr::text, projected_apr::text,
			updated_at
		FROM pool_snapshots
		WHERE asset = $1
		ORDER BY latest_block DESC
		LIMIT 1`, asset.Bytes(),
	).Scan(
		&lpToken, &latest, &previous,
		&rateCurrent, &ratePrevious,
		&liquid, &utilized, &fees,
		&total, &utilRatio,
		&blocks, &seconds,
		&apy, &apr, &projected,
		&updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pool snapshot: %w", err)
	}

	s := &entity.PoolSnapshot{
		Asset:          asset,
		LPToken:        common.BytesToAddress(lpToken),
		LatestBlock:    uint64(latest),
		PreviousBlock:  uint64(previous),
		BlocksElapsed:  uint64(blocks),
		SecondsElapsed: uint64(seconds),
		UpdatedAt:      updatedAt.UTC(),
	}
	ints := []struct {
		column string
		value  string
		dst    **big.Int
	}{
		{"exchange_rate_current", rateCurrent, &s.ExchangeRateCurrent},
		{"exchange_rate_previous", ratePrevious, &s.ExchangeRatePrevious},
		{"liquid_reserves", liquid, &s.LiquidReserves},
		{"utilized_reserves", utilized, &s.UtilizedReserves},
		{"undistributed_lp_fees", fees, &s.UndistributedLpFees},
		{"total_pool_size", total, &s.TotalPoolSize},
		{"liquidity_utilization", utilRatio, &s.LiquidityUtilization},
	}
	for _, f := range ints {
		if *f.dst, err = parseBig(f.column, f.value); err != nil {
			return nil, err
		}
	}
	if s.EstimatedApy, err = parseDecimal("estimated_apy", apy); err != nil {
		return nil, err
	}
	if s.EstimatedApr, err = parseDecimal("estimated_apr", apr); err != nil {
		return nil, err
	}
	if projected != nil {
		d, err := parseDecimal("projected_apr", *projected)
		if err != nil {
			return nil, err
		}
		s.ProjectedApr = &d
	}
	return s, nil
}

// LatestUserSnapshot returns the position of user in asset at the highest
// stored block.
func (r *SnapshotRepository) LatestUserSnapshot(ctx context.Context, user, asset common.Address) (*entity.UserSnapshot, error) {
	var (
		block     int64
		values    [8]string
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT block,
			lp_token_balance::text, staked_balance::text, position_value::text, total_deposited::text,
			airdrop_balance::text, transfer_value::text, net_balance_transferred::text, fees_earned::text,
			updated_at
		FROM user_snapshots
		WHERE user_address = $1 AND asset = $2
		ORDER BY block DESC
		LIMIT 1`, user.Bytes(), asset.Bytes(),
	).Scan(
		&block,
		&values[0], &values[1], &values[2], &values[3],
		&values[4], &values[5], &values[6], &values[7],
		&updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user snapshot: %w", err)
	}

	s := &entity.UserSnapshot{
		User:      user,
		Asset:     asset,
		Block:     uint64(block),
		UpdatedAt: updatedAt.UTC(),
	}
	columns := [8]string{
		"lp_token_balance", "staked_balance", "position_value", "total_deposited",
		"airdrop_balance", "transfer_value", "net_balance_transferred", "fees_earned",
	}
	dsts := [8]**big.Int{
		&s.LPTokenBalance, &s.StakedBalance, &s.PositionValue, &s.TotalDeposited,
		&s.AirdropBalance, &s.TransferValue, &s.NetBalanceTransferred, &s.FeesEarned,
	}
	for i := range columns {
		if *dsts[i], err = parseBig(columns[i], values[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
