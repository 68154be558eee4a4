package models

import "github.com/shopspring/decimal"

// Order is the subset of the order service representation this service reads.
type Order struct {
	ID         int64            `json:"id"`
	TotalPrice *decimal.Decimal `json:"total_price"`
	Status     string           `json:"status,omitempty"`
}
