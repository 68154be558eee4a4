package providers

import (
	"context"

	"github.com/shopspring/decimal"
)

// EmergencyProvider approves every charge without contacting any processor.
// It is only ever selected explicitly through configuration.
type EmergencyProvider struct {
	currency string
}

func NewEmergencyProvider(currency string) *EmergencyProvider {
	return &EmergencyProvider{currency: currency}
}

func (p *EmergencyProvider) Name() string { return "emergency" }

func (p *EmergencyProvider) ProcessPayment(_ context.Context, _ int64, amount decimal.Decimal, _, _ string) (*TransactionResult, error) {
	return EmergencyApproval(amount, p.currency), nil
}

func (p *EmergencyProvider) RefundPayment(_ context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error) {
	result := &RefundResult{
		RefundID:      SyntheticID("refund_"),
		TransactionID: transactionID,
		Status:        RefundSucceeded,
	}
	if amount != nil {
		result.Amount = *amount
	}
	return result, nil
}

// EmergencyApproval is the synthetic approval substituted for a missing provider result.
func EmergencyApproval(amount decimal.Decimal, currency string) *TransactionResult {
	return &TransactionResult{
		TransactionID: SyntheticID("emergency_"),
		Status:        StatusApproved,
		Amount:        amount,
		Currency:      currency,
	}
}
