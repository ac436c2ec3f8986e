// Package receipt_trigger consumes deposit notifications from SQS and
// refreshes the depositor's snapshot from the transaction receipt, so that a
// user sees a deposit before the next poll cycle.
//
// Messages are JSON objects {"user": "0x...", "txHash": "0x..."}. A message
// is deleted once its refresh succeeds or once it can never succeed
// (malformed body, reverted transaction, receipt that touches no single
// pooled asset). Any other failure makes the message visible again after
// RetryVisibility. A message delivered more than MaxReceives times is deleted
// unprocessed, for queues that have no redrive policy.
package receipt_trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/services/pool_state"
)

type Config struct {
	// MaxMessages is the batch size of one receive call, at most 10.
	MaxMessages int

	// PollInterval separates receive calls. Long polling makes most of the
	// wait happen inside the receive call.
	PollInterval time.Duration

	// RetryVisibility is how long a failed message stays hidden.
	RetryVisibility time.Duration

	// MaxReceives is the delivery count after which a message is dropped
	// without another attempt.
	MaxReceives int

	Logger *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		MaxMessages:     10,
		PollInterval:    100 * time.Millisecond,
		RetryVisibility: 30 * time.Second,
		MaxReceives:     5,
		Logger:          slog.Default(),
	}
}

// errPermanent marks a message that no retry can fix.
var errPermanent = errors.New("permanent failure")

type receiptMessage struct {
	User   string `json:"user"`
	TxHash string `json:"txHash"`
}

// Service turns receipt notifications into user refreshes.
type Service struct {
	config    Config
	consumer  outbound.SQSConsumer
	ledger    outbound.LedgerReader
	refresher inbound.PoolStateRefresher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(config Config, consumer outbound.SQSConsumer, ledger outbound.LedgerReader, refresher inbound.PoolStateRefresher) (*Service, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger reader is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}

	defaults := ConfigDefaults()
	if config.MaxMessages == 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RetryVisibility == 0 {
		config.RetryVisibility = defaults.RetryVisibility
	}
	if config.MaxReceives == 0 {
		config.MaxReceives = defaults.MaxReceives
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:    config,
		consumer:  consumer,
		ledger:    ledger,
		refresher: refresher,
		logger:    config.Logger.With("component", "receipt-trigger"),
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.processLoop()

	s.logger.Info("receipt trigger started")
	return nil
}

func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("receipt trigger stopped")
	return nil
}

func (s *Service) processLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.processMessages(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("error processing messages", "error", err)
			}
		}
	}
}

// processMessages handles one batch. It returns the joined errors of the
// messages left on the queue.
func (s *Service) processMessages(ctx context.Context) error {
	messages, err := s.consumer.ReceiveMessages(ctx, s.config.MaxMessages)
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}

	var errs []error
	for _, msg := range messages {
		if msg.ReceiveCount > s.config.MaxReceives {
			s.logger.Warn("dropping message past max receives",
				"messageId", msg.MessageID,
				"receiveCount", msg.ReceiveCount,
				"maxReceives", s.config.MaxReceives)
			if deleteErr := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); deleteErr != nil {
				s.logger.Error("failed to delete message", "messageId", msg.MessageID, "error", deleteErr)
			}
			continue
		}

		err := s.processMessage(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, errPermanent):
			s.logger.Error("dropping message", "messageId", msg.MessageID, "error", err)
		default:
			s.logger.Warn("refresh failed, message will be retried",
				"messageId", msg.MessageID,
				"receiveCount", msg.ReceiveCount,
				"error", err)
			if visErr := s.consumer.ChangeVisibility(ctx, msg.ReceiptHandle, s.config.RetryVisibility); visErr != nil {
				s.logger.Error("failed to change message visibility", "messageId", msg.MessageID, "error", visErr)
			}
			errs = append(errs, err)
			continue
		}

		if deleteErr := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); deleteErr != nil {
			s.logger.Error("failed to delete message", "messageId", msg.MessageID, "error", deleteErr)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) processMessage(ctx context.Context, msg outbound.SQSMessage) error {
	user, txHash, err := parseMessage(msg.Body)
	if err != nil {
		return err
	}

	receipt, err := s.ledger.TransactionReceipt(ctx, txHash)
	if errors.Is(err, outbound.ErrTransactionReverted) {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	if err != nil {
		return fmt.Errorf("fetching receipt %s: %w", txHash.Hex(), err)
	}

	result := s.refresher.RefreshUserFromReceipt(ctx, user, receipt)
	if result.Succeeded() {
		s.logger.Info("refreshed user from receipt",
			"user", user.Hex(),
			"txHash", txHash.Hex(),
			"block", receipt.BlockNumber,
			"status", result.Status)
		return nil
	}
	if errors.Is(result.Err, pool_state.ErrAmbiguousReceipt) || errors.Is(result.Err, pool_state.ErrUnknownAsset) {
		return fmt.Errorf("%w: %w", errPermanent, result.Err)
	}
	return result.Err
}

func parseMessage(body string) (common.Address, common.Hash, error) {
	var m receiptMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: invalid message body: %w", errPermanent, err)
	}
	if !common.IsHexAddress(m.User) {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: invalid user %q", errPermanent, m.User)
	}
	raw, err := hexutil.Decode(m.TxHash)
	if err != nil || len(raw) != common.HashLength {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: invalid txHash %q", errPermanent, m.TxHash)
	}
	return common.HexToAddress(m.User), common.BytesToHash(raw), nil
}
