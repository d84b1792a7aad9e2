package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/currency"
	"github.com/congo-pay/fxledger/internal/fxrate"
	"github.com/congo-pay/fxledger/internal/money"
	"github.com/congo-pay/fxledger/internal/txlog"
	"github.com/congo-pay/fxledger/internal/wallet"
)

var (
	// ErrWalletNotFound means the caller has no wallet.
	ErrWalletNotFound = wallet.ErrNotFound

	// ErrInsufficientBalance occurs when the source balance is absent or lower
	// than the amount requested.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSameCurrency rejects conversions whose source and target are equal.
	ErrSameCurrency = errors.New("source and target currency must differ")

	// ErrInvalidAmount rejects non-positive or over-precise amounts.
	ErrInvalidAmount = money.ErrInvalidAmount

	// ErrUnsupportedCurrency rejects codes outside the active currency set.
	ErrUnsupportedCurrency = currency.ErrUnsupported

	// ErrRateUnavailable means no rate could be obtained for the pair.
	ErrRateUnavailable = fxrate.ErrRateUnavailable

	// ErrLockTimeout means a balance row lock could not be acquired in time.
	ErrLockTimeout = errors.New("balance lock timeout")

	// ErrOperationTimeout means the operation exceeded its deadline before
	// committing.
	ErrOperationTimeout = errors.New("operation timed out")
)

// IsRetryable reports whether err is transient: the same request may succeed
// if sent again later. Nothing was committed when such an error is returned.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrOperationTimeout) ||
		errors.Is(err, ErrRateUnavailable)
}

// Store runs fn inside a single atomic unit of work. Every write made through
// the Tx is committed when fn returns nil and discarded otherwise, and every
// lock taken through the Tx is released before WithinTx returns.
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the view of the balance store and transaction log available inside a
// unit of work.
type Tx interface {
	// WalletForUser resolves the wallet owned by userID.
	WalletForUser(ctx context.Context, userID string) (wallet.Wallet, error)
	// LockBalance takes the exclusive lock on the (walletID, currency) row.
	// With create set, a missing row is first created at zero. found is false
	// only when the row does not exist and create was not set.
	LockBalance(ctx context.Context, walletID, currency string, create bool) (b wallet.Balance, found bool, err error)
	// UpsertBalance sets the row to amount, creating it if needed.
	UpsertBalance(ctx context.Context, walletID, currency string, amount decimal.Decimal) (wallet.Balance, error)
	// AppendTransaction records t in the transaction log.
	AppendTransaction(ctx context.Context, t txlog.Transaction) error
}

// RateSource supplies exchange rates.
type RateSource interface {
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// CurrencyValidator normalizes a code and checks it is active.
type CurrencyValidator interface {
	Validate(ctx context.Context, code string) (string, error)
}
