package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/kauan1020/payments-microservice/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

var ErrMissingOrderMetadata = errors.New("stripe object has no order_id metadata")

// WebhookUpdate is a payment status change reported by Stripe.
type WebhookUpdate struct {
	OrderID   int64
	Status    models.PaymentStatus
	EventID   string
	EventType string
}

// StripeWebhookParser verifies Stripe webhook signatures and extracts status updates.
type StripeWebhookParser struct {
	secret string
}

func NewStripeWebhookParser(secret string) *StripeWebhookParser {
	return &StripeWebhookParser{secret: secret}
}

// Parse verifies the Stripe-Signature header against payload.
func (p *StripeWebhookParser) Parse(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// StatusUpdate maps an event to a payment status change. ok is false for event
// types that carry no status change.
func (p *StripeWebhookParser) StatusUpdate(event stripe.Event) (update WebhookUpdate, ok bool, err error) {
	update = WebhookUpdate{EventID: event.ID, EventType: string(event.Type)}
	if event.Data == nil {
		return update, false, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var metadata map[string]string
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return update, false, fmt.Errorf("unmarshal payment intent: %w", err)
		}
		metadata = pi.Metadata
		update.Status = models.StatusRejected
		if event.Type == "payment_intent.succeeded" {
			update.Status = models.StatusApproved
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return update, false, fmt.Errorf("unmarshal charge: %w", err)
		}
		metadata = ch.Metadata
		update.Status = models.StatusRefunded
	default:
		return update, false, nil
	}

	orderID, err := strconv.ParseInt(metadata["order_id"], 10, 64)
	if err != nil || orderID <= 0 {
		return update, false, fmt.Errorf("%w: event %s", ErrMissingOrderMetadata, event.ID)
	}
	update.OrderID = orderID
	return update, true, nil
}
