// Package sqs provides an SQS adapter for consuming messages from AWS SQS queues.
package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
)

// sqsAPI defines the subset of SQS operations needed by the Consumer.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Compile-time check that Consumer implements outbound.SQSConsumer
var _ outbound.SQSConsumer = (*Consumer)(nil)

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the URL of the SQS queue to consume from.
	QueueURL string

	// WaitTimeSeconds is how long to wait for messages (long polling).
	// Max is 20 seconds.
	WaitTimeSeconds int32

	// VisibilityTimeout hides received messages for this long. Zero keeps
	// the queue's own setting.
	VisibilityTimeout time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for SQS consumer configuration.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
		Logger:          slog.Default(),
	}
}

// Consumer is an SQS implementation of the outbound.SQSConsumer port.
type Consumer struct {
	client sqsAPI
	config Config
	logger *slog.Logger
}

// NewConsumer creates a consumer backed by an SQS client built from cfg.
func NewConsumer(cfg aws.Config, config Config, optFns ...func(*sqs.Options)) (*Consumer, error) {
	return newConsumer(sqs.NewFromConfig(cfg, optFns...), config)
}

func newConsumer(client sqsAPI, config Config) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is required")
	}
	if config.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	defaults := ConfigDefaults()
	if config.WaitTimeSeconds == 0 {
		config.WaitTimeSeconds = defaults.WaitTimeSeconds
	}
	if config.WaitTimeSeconds > 20 {
		config.WaitTimeSeconds = 20
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Consumer{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sqs-consumer"),
	}, nil
}

// ReceiveMessages fetches up to maxMessages from the queue.
func (c *Consumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > 10 {
		maxMessages = 10 // SQS max is 10
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(c.config.QueueURL),
		MaxNumberOfMessages:         int32(maxMessages),
		WaitTimeSeconds:             c.config.WaitTimeSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if c.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(c.config.VisibilityTimeout / time.Second)
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]outbound.SQSMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			continue
		}
		receiveCount, _ := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		messages = append(messages, outbound.SQSMessage{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Body:          *msg.Body,
			ReceiveCount:  receiveCount,
		})
	}

	if len(messages) > 0 {
		c.logger.Debug("received messages", "count", len(messages))
	}

	return messages, nil
}

// DeleteMessage removes a successfully processed message from the queue.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ChangeVisibility sets the remaining visibility timeout of a received message.
func (c *Consumer) ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(timeout / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to change message visibility: %w", err)
	}
	return nil
}

// Close closes the consumer (no-op for SQS, but satisfies interface).
func (c *Consumer) Close() error {
	return nil
}
