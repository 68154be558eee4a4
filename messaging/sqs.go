package messaging

import (
	"context"
	"encoding/json"
	"errors"

	aws_pkg "github.com/kauan1020/payments-microservice/pkg/aws"
)

var errRequeue = errors.New("message requeued")

// SQSSource long-polls an SQS queue. Ack deletes the message; Requeue leaves it
// to reappear after the visibility timeout.
type SQSSource struct {
	consumer *aws_pkg.SQSConsumer
}

func NewSQSSource(consumer *aws_pkg.SQSConsumer) *SQSSource {
	return &SQSSource{consumer: consumer}
}

func (s *SQSSource) Consume(ctx context.Context, handler Handler) error {
	return s.consumer.StartPolling(ctx, sqsHandler(handler))
}

func sqsHandler(handler Handler) aws_pkg.MessageHandler {
	return func(ctx context.Context, body string) error {
		if handler(ctx, unwrapSNSEnvelope([]byte(body))) == Requeue {
			return errRequeue
		}
		return nil
	}
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// unwrapSNSEnvelope returns the inner message when body is an SNS notification
// delivered to SQS without raw message delivery.
func unwrapSNSEnvelope(body []byte) []byte {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if env.Type == "Notification" && env.Message != "" {
		return []byte(env.Message)
	}
	return body
}

// SQSPublisher sends messages to an SQS queue.
type SQSPublisher struct {
	queue *aws_pkg.SQSConsumer
}

func NewSQSPublisher(queue *aws_pkg.SQSConsumer) *SQSPublisher {
	return &SQSPublisher{queue: queue}
}

func (p *SQSPublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	return p.queue.SendMessage(ctx, string(payload))
}

// SNSPublisher publishes messages to one SNS topic.
type SNSPublisher struct {
	client   aws_pkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client aws_pkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	return p.client.Publish(ctx, p.topicArn, payload)
}
