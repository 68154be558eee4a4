package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Outcome tells the transport what to do with a delivered message.
type Outcome int

const (
	// Ack removes the message from the channel.
	Ack Outcome = iota
	// Requeue leaves the message for a later delivery.
	Requeue
)

func (o Outcome) String() string {
	if o == Requeue {
		return "requeue"
	}
	return "ack"
}

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) Outcome

// Source delivers messages from a request channel. Each Consume call is one
// independent consumer loop handling a single message at a time; it returns when
// ctx is cancelled.
type Source interface {
	Consume(ctx context.Context, handler Handler) error
}

// Publisher writes one message to an outbound channel. key groups messages that
// must stay ordered (the order id).
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// PublishJSON encodes v and publishes it through p.
func PublishJSON(ctx context.Context, p Publisher, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.Publish(ctx, key, payload)
}

// MultiPublisher fans a message out to every configured publisher.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewMultiPublisher drops nil entries and returns nil when nothing remains.
func NewMultiPublisher(publishers ...Publisher) Publisher {
	var out MultiPublisher
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
