// Package redis provides a Redis implementation of the RateStore port.
//
// Historical exchange rates are kept in one hash per asset, keyed
// prefix:chainID:rates:asset, with the block number as field and the rate as
// a base-10 string value. Each save refreshes the hash TTL.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that RateStore implements outbound.RateStore
var _ outbound.RateStore = (*RateStore)(nil)

// Config holds Redis rate store configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long an asset's rates live after the last save
	TTL time.Duration
	// KeyPrefix is prepended to all keys
	KeyPrefix string
	// ChainID separates rates of the same asset address on different chains
	ChainID int64
}

// ConfigDefaults returns sensible defaults for Redis rate store configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       30 * 24 * time.Hour,
		KeyPrefix: "pool-state",
		ChainID:   1,
	}
}

// RateStore is a Redis implementation of the outbound.RateStore port.
type RateStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	chainID   int64
	logger    *slog.Logger
}

// NewRateStore creates a new Redis rate store.
func NewRateStore(cfg Config, logger *slog.Logger) (*RateStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	defaults := ConfigDefaults()
	if cfg.TTL == 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaults.ChainID
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &RateStore{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		chainID:   cfg.ChainID,
		logger:    logger.With("component", "redis-rate-store"),
	}, nil
}

// Ping checks the Redis connection.
func (s *RateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RateStore) Close() error {
	return s.client.Close()
}

// key generates a key in the format prefix:chainID:rates:asset
func (s *RateStore) key(asset common.Address) string {
	return fmt.Sprintf("%s:%d:rates:%s", s.keyPrefix, s.chainID, strings.ToLower(asset.Hex()))
}

// LoadRates reads the requested blocks in one HMGET. Unparseable values are
// logged and treated as absent.
func (s *RateStore) LoadRates(ctx context.Context, asset common.Address, blocks []uint64) (map[uint64]*big.Int, error) {
	out := make(map[uint64]*big.Int)
	if len(blocks) == 0 {
		return out, nil
	}

	fields := make([]string, len(blocks))
	for i, block := range blocks {
		fields[i] = strconv.FormatUint(block, 10)
	}

	values, err := s.client.HMGet(ctx, s.key(asset), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rate, ok := new(big.Int).SetString(str, 10)
		if !ok {
			s.logger.Warn("ignoring malformed stored rate", "asset", asset.Hex(), "block", blocks[i], "value", str)
			continue
		}
		out[blocks[i]] = rate
	}
	return out, nil
}

// SaveRates writes the rates and refreshes the TTL in one transaction.
func (s *RateStore) SaveRates(ctx context.Context, asset common.Address, rates map[uint64]*big.Int) error {
	if len(rates) == 0 {
		return nil
	}

	values := make(map[string]any, len(rates))
	for block, rate := range rates {
		if rate == nil {
			continue
		}
		values[strconv.FormatUint(block, 10)] = rate.String()
	}
	if len(values) == 0 {
		return nil
	}

	key := s.key(asset)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save rates: %w", err)
	}
	return nil
}
