package models

import (
	"errors"
	"fmt"
		"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusApproved   PaymentStatus = "APPROVED"
	StatusRejected   PaymentStatus = "REJECTED"
	StatusRefunded   PaymentStatus = "REFUNDED"
	StatusError      PaymentStatus = "ERROR"
)

var (
	ErrInvalidStatus          = errors.New("invalid payment status")
	ErrInvalidTransition      = errors.New("invalid payment status transition")
	ErrTransactionIDImmutable = errors.New("transaction id already assigned")
)

// allowedTransitions lists the statuses reachable from each status.
// Same-status updates are always accepted and are not listed here.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusApproved, StatusRejected, StatusError},
	StatusProcessing: {StatusPending, StatusApproved, StatusRejected, StatusError},
	StatusApproved:   {StatusRefunded},
	StatusError:      {StatusProcessing, StatusApproved, StatusRejected},
	StatusRejected:   {},
	StatusRefunded:   {},
}

// AllStatuses returns the closed set of payment statuses.
func AllStatuses() []PaymentStatus {
	return []PaymentStatus{StatusPending, StatusProcessing, StatusApproved, StatusRejected, StatusRefunded, StatusError}
}

// ParsePaymentStatus converts an external token into a PaymentStatus. Only the
// exact upper-case tokens are accepted.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

func (s PaymentStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no automatic transition leaves s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusRefunded, StatusError:
		return true
	}
	return false
}

// IsSettled reports whether a worker message must never re-charge a payment in s.
func (s PaymentStatus) IsSettled() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusRefunded
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

type Payment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       int64           `gorm:"uniqueIndex;not null" json:"order_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	TransactionID string          `gorm:"type:varchar(255)" json:"transaction_id,omitempty"`
	ErrorMessage  string          `gorm:"type:text" json:"error_message,omitempty"`
	PaymentMethod string          `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	LastRequestID string          `gorm:"type:varchar(100)" json:"last_request_id,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewPayment builds an unsaved payment in the given initial status.
func NewPayment(orderID int64, amount decimal.Decimal, status PaymentStatus, paymentMethod string) *Payment {
	return &Payment{
		OrderID:       orderID,
		Amount:        amount,
		Status:        status,
		PaymentMethod: paymentMethod,
	}
}

// TransitionTo moves the payment to next when the transition table allows it.
// Leaving ERROR clears the stored error message.
func (p *Payment) TransitionTo(next PaymentStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(next))
	}
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	if next != StatusError {
		p.ErrorMessage = ""
	}
	p.Status = next
	return nil
}

// Fail moves the payment to ERROR and records the failure text.
func (p *Payment) Fail(message string) error {
	if err := p.TransitionTo(StatusError); err != nil {
		return err
	}
	p.ErrorMessage = message
	return nil
}

// AssignTransaction records the provider transaction id. Once set it can only be
// re-assigned the same value.
func (p *Payment) AssignTransaction(transactionID string) error {
	if transactionID == "" {
		return nil
	}
	if p.TransactionID != "" && p.TransactionID != transactionID {
		return fmt.Errorf("%w: order %d has %s", ErrTransactionIDImmutable, p.OrderID, p.TransactionID)
	}
	p.TransactionID = transactionID
	return nil
}
