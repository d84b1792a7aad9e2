package txlog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a ledger transaction.
type Type string

const (
	TypeFunding    Type = "FUNDING"
	TypeConversion Type = "CONVERSION"
	TypeTrade      Type = "TRADE"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeFunding, TypeConversion, TypeTrade:
		return true
	}
	return false
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transaction is an immutable audit record of a balance mutation. Empty
// currency strings and invalid NullDecimals mean the field does not apply.
type Transaction struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	Type         Type                `json:"type"`
	FromCurrency string              `json:"fromCurrency,omitempty"`
	ToCurrency   string              `json:"toCurrency,omitempty"`
	FromAmount   decimal.NullDecimal `json:"fromAmount"`
	ToAmount     decimal.NullDecimal `json:"toAmount"`
	ExchangeRate decimal.NullDecimal `json:"exchangeRate"`
	Status       Status              `json:"status"`
	Metadata     map[string]string   `json:"metadata"`
	CreatedAt    time.Time           `json:"createdAt"`
}
