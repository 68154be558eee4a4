package aws

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client used by SQSConsumer.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConsumer provides methods for consuming from and sending to one SQS queue
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger

	// MaxMessages is the receive batch size, handled one message at a time.
	MaxMessages int32
	// WaitTimeSeconds enables long polling.
	WaitTimeSeconds int32
	// VisibilityTimeout is how long an unacknowledged message stays hidden.
	VisibilityTimeout int32
}

// NewSQSConsumer creates a new SQS consumer for the given queue URL
func NewSQSConsumer(cfg aws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return NewSQSConsumerWithClient(sqs.NewFromConfig(cfg), queueURL, logger)
}

func NewSQSConsumerWithClient(client SQSAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:            client,
		queueURL:          queueURL,
		logger:            logger,
		MaxMessages:       10,
		WaitTimeSeconds:   20,
		VisibilityTimeout: 30,
	}
}

// maxVisibilityTimeout is the SQS upper bound, in seconds.
const maxVisibilityTimeout = 12 * 60 * 60

// HoldWhileProcessing receives one message per poll and keeps it hidden for
// processingTime plus margin, so a message is not redelivered while its
// handler is still running.
func (c *SQSConsumer) HoldWhileProcessing(processingTime, margin time.Duration) {
	seconds := int64(math.Ceil((processingTime + margin).Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	if seconds > maxVisibilityTimeout {
		seconds = maxVisibilityTimeout
	}
	c.MaxMessages = 1
	c.VisibilityTimeout = int32(seconds)
}

// QueueURL returns the queue this consumer is bound to.
func (c *SQSConsumer) QueueURL() string {
	return c.queueURL
}

// MessageHandler processes one message body. A nil error deletes the message;
// any error leaves it on the queue until the visibility timeout expires.
type MessageHandler func(ctx context.Context, body string) error

// StartPolling polls SQS for messages and processes them with the handler.
// Runs until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting SQS polling", zap.String("queue_url", c.queueURL))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SQS polling stopped", zap.String("queue_url", c.queueURL))
			return ctx.Err()
		default:
			if err := c.PollOnce(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("Error polling SQS", zap.Error(err))
			}
		}
	}
}

// PollOnce receives one batch and hands each message to handler in order.
func (c *SQSConsumer) PollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: c.MaxMessages,
		WaitTimeSeconds:     c.WaitTimeSeconds,
		VisibilityTimeout:   c.VisibilityTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}

		if err := handler(ctx, *msg.Body); err != nil {
			c.logger.Info("Message left on queue",
				zap.String("message_id", aws.ToString(msg.MessageId)),
				zap.Error(err),
			)
			continue
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.Warn("Failed to delete message",
				zap.String("message_id", aws.ToString(msg.MessageId)),
				zap.Error(err),
			)
		}
	}

	return nil
}

// SendMessage sends a single message to the queue
func (c *SQSConsumer) SendMessage(ctx context.Context, body string) error {
	_, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &c.queueURL,
		MessageBody: &body,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
