package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedMessage = errors.New("malformed payment request message")

// PaymentRequest is the payload carried on the payment_requests channel.
// RequestID names one charge attempt: redeliveries of a message share it and a
// deliberate retry must carry a new one.
type PaymentRequest struct {
	RequestID     string          `json:"request_id,omitempty"`
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

func (r PaymentRequest) Validate() error {
	if r.OrderID <= 0 {
		return errors.Join(ErrMalformedMessage, errors.New("order_id must be positive"))
	}
	if !r.Amount.IsPositive() {
		return errors.Join(ErrMalformedMessage, errors.New("amount must be positive"))
	}
	return nil
}

// PaymentResponse is the payload published on the payment_responses channel.
type PaymentResponse struct {
	OrderID       int64         `json:"order_id"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Error         string        `json:"error,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ResponseFor snapshots the outcome stored on p.
func ResponseFor(p *Payment) PaymentResponse {
	return PaymentResponse{
		OrderID:       p.OrderID,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		Error:         p.ErrorMessage,
		Timestamp:     time.Now().UTC(),
	}
}
