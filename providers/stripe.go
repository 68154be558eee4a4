package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
	"go.uber.org/zap"
)

// StripeProvider charges through Stripe PaymentIntents and refunds through Stripe Refunds.
type StripeProvider struct {
	intents  *paymentintent.Client
	refunds  *refund.Client
	currency string
	logger   *zap.Logger
}

// NewStripeProvider builds a provider against the live Stripe API.
func NewStripeProvider(secretKey, currency string, logger *zap.Logger) *StripeProvider {
	return NewStripeProviderWithBackend(secretKey, currency, stripe.GetBackend(stripe.APIBackend), logger)
}

// NewStripeProviderWithBackend builds a provider that sends every call to backend.
func NewStripeProviderWithBackend(secretKey, currency string, backend stripe.Backend, logger *zap.Logger) *StripeProvider {
	return &StripeProvider{
		intents:  &paymentintent.Client{B: backend, Key: secretKey},
		refunds:  &refund.Client{B: backend, Key: secretKey},
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

// NewStripeBackend returns a backend for baseURL with retries and SDK logging disabled.
func NewStripeBackend(baseURL string, httpClient *http.Client) stripe.Backend {
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) ProcessPayment(ctx context.Context, orderID int64, amount decimal.Decimal, paymentMethod, attemptID string) (*TransactionResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(amount)),
		Currency:           stripe.String(p.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey(orderID, attemptID))
	params.AddMetadata("order_id", strconv.FormatInt(orderID, 10))
	if paymentMethod != "" {
		params.AddMetadata("payment_method", paymentMethod)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment processing error: %w", err)
	}

	p.logger.Info("Stripe PaymentIntent created",
		zap.Int64("order_id", orderID),
		zap.String("payment_intent_id", pi.ID),
		zap.String("stripe_status", string(pi.Status)),
	)

	return &TransactionResult{
		TransactionID: pi.ID,
		Status:        MapStripeIntentStatus(pi.Status),
		Amount:        amount,
		Currency:      strings.ToUpper(p.currency),
	}, nil
}

func (p *StripeProvider) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(toMinorUnits(*amount))
	}

	r, err := p.refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund processing error: %w", err)
	}

	result := &RefundResult{
		RefundID:      r.ID,
		TransactionID: transactionID,
		Status:        string(r.Status),
		Amount:        decimal.New(r.Amount, -2),
	}
	if amount != nil {
		result.Amount = *amount
	}
	return result, nil
}

// MapStripeIntentStatus normalises a PaymentIntent status into a provider status.
func MapStripeIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusApproved
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPendingConfirmation
	case stripe.PaymentIntentStatusCanceled:
		return StatusRejected
	default:
		return StatusProcessing
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
