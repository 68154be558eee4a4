package providers

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MockProvider approves every charge and refunds most of the time. Used for
// local development and tests.
type MockProvider struct {
	logger            *zap.Logger
	currency          string
	latency           time.Duration
	refundSuccessRate float64
	random            func() float64
}

type MockOption func(*MockProvider)

// WithLatency simulates network latency on every call.
func WithLatency(d time.Duration) MockOption {
	return func(p *MockProvider) { p.latency = d }
}

// WithRefundSuccessRate sets the probability (0..1) that a refund succeeds.
func WithRefundSuccessRate(rate float64) MockOption {
	return func(p *MockProvider) { p.refundSuccessRate = rate }
}

func NewMockProvider(logger *zap.Logger, opts ...MockOption) *MockProvider {
	p := &MockProvider{
		logger:            logger,
		currency:          "BRL",
		refundSuccessRate: 0.9,
		random:            rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) ProcessPayment(ctx context.Context, orderID int64, amount decimal.Decimal, paymentMethod, _ string) (*TransactionResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	result := &TransactionResult{
		TransactionID: SyntheticID("mock_"),
		Status:        StatusApproved,
		Amount:        amount,
		Currency:      p.currency,
	}
	p.logger.Debug("Mock charge approved",
		zap.Int64("order_id", orderID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("payment_method", paymentMethod),
	)
	return result, nil
}

func (p *MockProvider) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	status := RefundFailed
	if p.random() < p.refundSuccessRate {
		status = RefundSucceeded
	}

	result := &RefundResult{
		RefundID:      SyntheticID("refund_"),
		TransactionID: transactionID,
		Status:        status,
	}
	if amount != nil {
		result.Amount = *amount
	}
	return result, nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.latency):
		return nil
	}
}
