// Package ethereum reads the hub pool system from an Ethereum JSON-RPC node:
// decoded log ranges, headers, receipts and contract state.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/pool-state/internal/pkg/retry"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.LedgerReader
var _ outbound.LedgerReader = (*Client)(nil)

// Compile-time check that Client can back a multicall client
var _ multicall.ContractCaller = (*Client)(nil)

// EthClient is the subset of ethclient.Client the adapter uses.
type EthClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	// RequestsPerSecond caps the request rate against the node.
	RequestsPerSecond float64

	// Burst is the number of requests allowed above the steady rate.
	Burst int

	// MaxBlockRange splits eth_getLogs queries into windows of at most this
	// many blocks. Providers reject wider ranges.
	MaxBlockRange uint64

	// Retry governs retries of transient node errors.
	Retry retry.Policy

	Logger *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		RequestsPerSecond: 20,
		Burst:             5,
		MaxBlockRange:     10_000,
		Retry:             retry.DefaultPolicy(),
		Logger:            slog.Default(),
	}
}

// Client is a rate limited, retrying LedgerReader over a JSON-RPC node.
type Client struct {
	eth     EthClient
	decoder *EventDecoder
	limiter *rate.Limiter
	config  Config
	logger  *slog.Logger
}

func NewClient(eth EthClient, decoder *EventDecoder, config Config) (*Client, error) {
	if eth == nil {
		return nil, errors.New("eth client is required")
	}
	if decoder == nil {
		return nil, errors.New("event decoder is required")
	}

	defaults := ConfigDefaults()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.MaxBlockRange == 0 {
		config.MaxBlockRange = defaults.MaxBlockRange
	}
	if config.Retry.Attempts == 0 {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Client{
		eth:     eth,
		decoder: decoder,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		config:  config,
		logger:  config.Logger.With("component", "ethereum-client"),
	}, nil
}

// QueryEvents runs eth_getLogs over [fromBlock, toBlock] in windows of at most
// MaxBlockRange blocks and decodes the result, ascending by event key.
func (c *Client) QueryEvents(ctx context.Context, filter outbound.EventFilter, fromBlock, toBlock uint64) ([]entity.LogEvent, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid block range [%d, %d]", fromBlock, toBlock)
	}
	topics, err := c.decoder.Topics(filter)
	if err != nil {
		return nil, err
	}

	var events []entity.LogEvent
	for start := fromBlock; start <= toBlock; {
		end := toBlock
		if end-start >= c.config.MaxBlockRange {
			end = start + c.config.MaxBlockRange - 1
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{filter.Contract},
			Topics:    topics,
		}
		logs, err := call(ctx, c, "eth_getLogs", func(ctx context.Context) ([]types.Log, error) {
			return c.eth.FilterLogs(ctx, query)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %s logs of %s in [%d, %d]: %w", filter.Event, filter.Contract.Hex(), start, end, err)
		}

		for _, log := range logs {
			if log.Removed {
				continue
			}
			event, ok, err := c.decoder.Decode(log)
			if err != nil {
				return nil, err
			}
			if ok && event.Name == filter.Event {
				events = append(events, event)
			}
		}

		if end == toBlock {
			break
		}
		start = end + 1
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Key.Less(events[j].Key) })
	return events, nil
}

func (c *Client) BlockByNumber(ctx context.Context, number *uint64) (entity.BlockInfo, error) {
	var n *big.Int
	if number != nil {
		n = new(big.Int).SetUint64(*number)
	}
	header, err := call(ctx, c, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		return c.eth.HeaderByNumber(ctx, n)
	})
	if err != nil {
		return entity.BlockInfo{}, fmt.Errorf("failed to get block %s: %w", blockLabel(number), err)
	}
	return entity.BlockInfo{Number: header.Number.Uint64(), Timestamp: header.Time}, nil
}

// TransactionReceipt returns the receipt with every log the decoder knows.
// A reverted transaction is an error.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (entity.Receipt, error) {
	receipt, err := call(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, txHash)
	})
	if err != nil {
		return entity.Receipt{}, fmt.Errorf("failed to get receipt of %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return entity.Receipt{}, fmt.Errorf("%s: %w", txHash.Hex(), outbound.ErrTransactionReverted)
	}

	out := entity.Receipt{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64()}
	for _, log := range receipt.Logs {
		event, ok, err := c.decoder.Decode(*log)
		if err != nil {
			return entity.Receipt{}, err
		}
		if ok {
			out.Logs = append(out.Logs, event)
		}
	}
	return out, nil
}

// CallContract runs eth_call under the same limiter and retry policy.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_call", func(ctx context.Context) ([]byte, error) {
		return c.eth.CallContract(ctx, msg, blockNumber)
	})
}

func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := retry.Do(ctx, c.config.Retry, retry.IsTransient,
		func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("retrying rpc call", "method", method, "attempt", attempt, "wait", wait, "error", err)
		},
		func(ctx context.Context) (T, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			return fn(ctx)
		})
	c.logger.Debug("rpc call", "method", method, "duration", time.Since(start), "ok", err == nil)
	return result, err
}

func blockLabel(number *uint64) string {
	if number == nil {
		return "latest"
	}
	return fmt.Sprintf("%d", *number)
}
