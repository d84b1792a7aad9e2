package wallet

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a user has no wallet.
var ErrNotFound = errors.New("wallet not found")

// Wallet is the single multi-currency container owned by a user.
type Wallet struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is the amount held in one currency of a wallet. Amounts are never
// negative.
type Balance struct {
	ID        string
	WalletID  string
	Currency  string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// View is the read model returned to clients.
type View struct {
	ID        string                     `json:"id"`
	UserID    string                     `json:"userId"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}
