package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Normalised charge outcomes every provider reports.
const (
	StatusApproved            = "APPROVED"
	StatusPendingConfirmation = "PENDING_CONFIRMATION"
	StatusProcessing          = "PROCESSING"
	StatusRejected            = "REJECTED"
)

// Refund outcomes.
const (
	RefundSucceeded = "succeeded"
	RefundPending   = "pending"
	RefundFailed    = "failed"
)

// TransactionResult is the outcome of a charge.
type TransactionResult struct {
	TransactionID string
	Status        string
	Amount        decimal.Decimal
	Currency      string
}

// Usable reports whether the result carries enough to record a payment outcome.
func (r *TransactionResult) Usable() bool {
	return r != nil && r.TransactionID != "" && r.Status != ""
}

// RefundResult is the outcome of a refund request.
type RefundResult struct {
	RefundID      string
	TransactionID string
	Status        string
	Amount        decimal.Decimal
}

// PaymentProvider executes charges and refunds against a payment processor.
type PaymentProvider interface {
	// ProcessPayment charges amount for orderID. It either returns a complete
	// result or an error; it never returns a pending handle. Calls sharing
	// attemptID must not charge more than once.
	ProcessPayment(ctx context.Context, orderID int64, amount decimal.Decimal, paymentMethod, attemptID string) (*TransactionResult, error)

	// RefundPayment refunds transactionID. A nil amount refunds the full charge.
	RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// SyntheticID returns prefix followed by 16 random hex characters.
func SyntheticID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// IdempotencyKey derives the provider idempotency key for one charge attempt
// of orderID.
func IdempotencyKey(orderID int64, attemptID string) string {
	key := "payment-order-" + strconv.FormatInt(orderID, 10)
	if attemptID == "" {
		return key
	}
	return key + "-" + attemptID
}
