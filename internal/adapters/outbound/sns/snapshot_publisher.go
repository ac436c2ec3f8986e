// Package sns publishes refresh results to an AWS SNS topic.
//
// Each result is serialized as an outbound.SnapshotMessage. Message attributes
// let subscribers filter without decoding the body:
//   - kind: "pool" or "user"
//   - status: "ok", "degraded" or "failed"
//   - asset: the asset address
//   - block: the snapshot block, absent on failure
//
// FIFO topics (ARN ending in ".fifo") are grouped by snapshot path so that a
// subscriber sees the snapshots of one pool or user in emission order.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/pkg/retry"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// Compile-time check that SnapshotPublisher implements outbound.SnapshotSink
var _ outbound.SnapshotSink = (*SnapshotPublisher)(nil)

// SNSPublisher defines the subset of SNS client methods used by SnapshotPublisher.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	// TopicARN is the topic every result is published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	Logger *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// SnapshotPublisher publishes refresh results to SNS.
type SnapshotPublisher struct {
	client SNSPublisher
	config Config
	policy retry.Policy
	logger *slog.Logger
	fifo   bool
	now    func() time.Time
	newID  func() string

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewSnapshotPublisher(client SNSPublisher, config Config) (*SnapshotPublisher, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &SnapshotPublisher{
		client: client,
		config: config,
		policy: retry.Policy{
			Attempts:   config.MaxRetries + 1,
			BaseDelay:  config.InitialBackoff,
			MaxDelay:   config.MaxBackoff,
			Multiplier: config.BackoffFactor,
		},
		logger: config.Logger.With("component", "sns-snapshot-publisher"),
		fifo:   strings.HasSuffix(config.TopicARN, ".fifo"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Emit publishes result.
func (p *SnapshotPublisher) Emit(ctx context.Context, result entity.RefreshResult) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return errors.New("snapshot publisher is closed")
	}

	msg := outbound.NewSnapshotMessage(p.newID(), result, p.now())
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot message: %w", err)
	}

	attributes := map[string]types.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.Kind),
		},
		"status": {
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.Status),
		},
		"asset": {
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.Asset()),
		},
	}
	if msg.Block != 0 {
		attributes["block"] = types.MessageAttributeValue{
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.FormatUint(msg.Block, 10)),
		}
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(p.config.TopicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attributes,
	}
	if p.fifo {
		input.MessageGroupId = aws.String(msg.Path)
		input.MessageDeduplicationId = aws.String(msg.MessageID)
	}

	err = retry.DoVoid(ctx, p.policy, isRetryableError,
		func(attempt int, err error, wait time.Duration) {
			p.logger.Warn("publish failed, retrying",
				"attempt", attempt,
				"maxRetries", p.config.MaxRetries,
				"backoff", wait,
				"path", msg.Path,
				"error", err)
		},
		func(ctx context.Context) error {
			_, err := p.client.Publish(ctx, input)
			return err
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s to SNS: %w", msg.Path, err)
	}
	return nil
}

// isRetryableError reports whether a publish error may succeed on retry.
// Unknown errors are usually network failures and are retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		throttled    *types.ThrottledException
		invalidParam *types.InvalidParameterException
		notFound     *types.NotFoundException
		authErr      *types.AuthorizationErrorException
	)
	if errors.As(err, &throttled) {
		return true
	}
	if errors.As(err, &invalidParam) || errors.As(err, &notFound) || errors.As(err, &authErr) {
		return false
	}

	// Any other client fault is a request SNS will keep rejecting.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultClient
	}
	return true
}

// Close marks the publisher as closed and prevents further publishing.
func (p *SnapshotPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.logger.Info("SNS snapshot publisher closed")
	})
	return nil
}
