package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes a topic in a consumer group. Ack commits the offset;
// Requeue retries the same message with backoff, so later messages on the
// partition wait behind it.
type KafkaSource struct {
	newReader  func() kafkaReader
	logger     *zap.Logger
	topic      string
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewKafkaSource(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{
		newReader: func() kafkaReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  brokers,
				Topic:    topic,
				GroupID:  groupID,
				MinBytes: 1e3,
				MaxBytes: 10e6,
				MaxWait:  time.Second,
			})
		},
		logger:     logger,
		topic:      topic,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Consume opens its own group member so each loop owns a disjoint set of partitions.
func (s *KafkaSource) Consume(ctx context.Context, handler Handler) error {
	reader := s.newReader()
	defer reader.Close()

	s.logger.Info("Starting Kafka consumer", zap.String("topic", s.topic))

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Error reading payment request", zap.String("topic", s.topic), zap.Error(err))
			if !sleepCtx(ctx, s.minBackoff) {
				return ctx.Err()
			}
			continue
		}

		for attempt := 0; handler(ctx, m.Value) == Requeue; attempt++ {
			wait := s.backoff(attempt)
			s.logger.Info("Retrying Kafka message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Duration("backoff", wait),
			)
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			s.logger.Warn("Failed to commit Kafka offset",
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

func (s *KafkaSource) backoff(attempt int) time.Duration {
	d := s.minBackoff << attempt
	if d <= 0 || d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes keyed messages to one topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return fmt.Errorf("kafka publish to %s failed: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
