package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/events"
	"github.com/congo-pay/fxledger/internal/metrics"
	"github.com/congo-pay/fxledger/internal/money"
	"github.com/congo-pay/fxledger/internal/txlog"
	"github.com/congo-pay/fxledger/internal/wallet"
)

// Options tunes a Coordinator. Zero values disable the feature.
type Options struct {
	OperationTimeout time.Duration
	Events           events.Publisher
	Metrics          *metrics.Collector
	Clock            func() time.Time
}

// Coordinator executes funding and conversion atomically against a Store.
type Coordinator struct {
	store      Store
	rates      RateSource
	currencies CurrencyValidator
	events     events.Publisher
	metrics    *metrics.Collector
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(store Store, rates RateSource, currencies CurrencyValidator, logger *slog.Logger, opts Options) *Coordinator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:      store,
		rates:      rates,
		currencies: currencies,
		events:     opts.Events,
		metrics:    opts.Metrics,
		logger:     logger,
		timeout:    opts.OperationTimeout,
		now:        now,
	}
}

// FundInput requests a credit of Amount in Currency to the user's wallet.
type FundInput struct {
	UserID   string
	Currency string
	Amount   decimal.Decimal
}

// FundResult reports a committed funding.
type FundResult struct {
	TransactionID   string          `json:"transactionId"`
	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	Balance         decimal.Decimal `json:"balance"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ConvertInput requests conversion of Amount from one currency to another.
type ConvertInput struct {
	UserID string
	From   string
	To     string
	Amount decimal.Decimal
}

// ConvertResult reports a committed conversion or trade.
type ConvertResult struct {
	TransactionID string          `json:"transactionId"`
	Type          txlog.Type      `json:"type"`
	FromCurrency  string          `json:"fromCurrency"`
	ToCurrency    string          `json:"toCurrency"`
	FromAmount    decimal.Decimal `json:"fromAmount"`
	ToAmount      decimal.Decimal `json:"toAmount"`
	ExchangeRate  decimal.Decimal `json:"exchangeRate"`
	FromBalance   decimal.Decimal `json:"fromBalance"`
	ToBalance     decimal.Decimal `json:"toBalance"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Fund credits the user's wallet and records a FUNDING transaction.
func (c *Coordinator) Fund(ctx context.Context, in FundInput) (FundResult, error) {
	start := time.Now()
	res, err := c.fund(ctx, in)
	c.observe("fund", start, err)
	if err != nil {
		c.logFailure("fund", in.UserID, err, slog.String("currency", in.Currency))
		return FundResult{}, err
	}
	c.logger.Info("wallet funded",
		slog.String("user_id", in.UserID),
		slog.String("transaction_id", res.TransactionID),
		slog.String("currency", res.Currency),
		slog.String("amount", res.Amount.String()),
	)
	return res, nil
}

// Convert moves value between two currencies of the user's wallet at the
// current rate and records a CONVERSION transaction.
func (c *Coordinator) Convert(ctx context.Context, in ConvertInput) (ConvertResult, error) {
	return c.exchange(ctx, "convert", txlog.TypeConversion, in)
}

// Trade has the balance effects of Convert but records a TRADE transaction.
func (c *Coordinator) Trade(ctx context.Context, in ConvertInput) (ConvertResult, error) {
	return c.exchange(ctx, "trade", txlog.TypeTrade, in)
}

func (c *Coordinator) exchange(ctx context.Context, op string, typ txlog.Type, in ConvertInput) (ConvertResult, error) {
	start := time.Now()
	res, err := c.convert(ctx, typ, in)
	c.observe(op, start, err)
	if err != nil {
		c.logFailure(op, in.UserID, err, slog.String("from", in.From), slog.String("to", in.To))
		return ConvertResult{}, err
	}
	c.logger.Info("currency converted",
		slog.String("operation", op),
		slog.String("user_id", in.UserID),
		slog.String("transaction_id", res.TransactionID),
		slog.String("from", res.FromCurrency),
		slog.String("to", res.ToCurrency),
		slog.String("amount", res.FromAmount.String()),
		slog.String("rate", res.ExchangeRate.String()),
	)
	return res, nil
}

func (c *Coordinator) fund(ctx context.Context, in FundInput) (FundResult, error) {
	if err := money.ValidateAmount(in.Amount); err != nil {
		return FundResult{}, err
	}
	code, err := c.currencies.Validate(ctx, in.Currency)
	if err != nil {
		return FundResult{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		res FundResult
		txn txlog.Transaction
	)
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		w, err := tx.WalletForUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		bal, _, err := tx.LockBalance(ctx, w.ID, code, true)
		if err != nil {
			return err
		}
		newAmount := bal.Amount.Add(in.Amount)
		if !money.WithinLimit(newAmount) {
			return fmt.Errorf("%w: balance would exceed %s", ErrInvalidAmount, money.MaxAmount)
		}
		if _, err := tx.UpsertBalance(ctx, w.ID, code, newAmount); err != nil {
			return err
		}

		txn = txlog.Transaction{
			ID:         uuid.NewString(),
			UserID:     in.UserID,
			Type:       txlog.TypeFunding,
			ToCurrency: code,
			ToAmount:   decimal.NewNullDecimal(in.Amount),
			Status:     txlog.StatusCompleted,
			Metadata: map[string]string{
				"previousBalance": bal.Amount.String(),
				"newBalance":      newAmount.String(),
			},
			CreatedAt: c.now().UTC(),
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}

		res = FundResult{
			TransactionID:   txn.ID,
			Currency:        code,
			Amount:          in.Amount,
			PreviousBalance: bal.Amount,
			Balance:         newAmount,
			CreatedAt:       txn.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return FundResult{}, classify(ctx, err)
	}

	c.publish(ctx, txn)
	return res, nil
}

func (c *Coordinator) convert(ctx context.Context, typ txlog.Type, in ConvertInput) (ConvertResult, error) {
	if err := money.ValidateAmount(in.Amount); err != nil {
		return ConvertResult{}, err
	}
	// Same-currency requests fail the same way whatever the registry says.
	if a, errA := money.NormalizeCode(in.From); errA == nil {
		if b, errB := money.NormalizeCode(in.To); errB == nil && a == b {
			return ConvertResult{}, ErrSameCurrency
		}
	}
	from, err := c.currencies.Validate(ctx, in.From)
	if err != nil {
		return ConvertResult{}, err
	}
	to, err := c.currencies.Validate(ctx, in.To)
	if err != nil {
		return ConvertResult{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// No row lock may be held across the provider call.
	rate, err := c.rates.GetRate(ctx, from, to)
	if err != nil {
		return ConvertResult{}, classify(ctx, err)
	}
	converted := money.Round(in.Amount.Mul(rate))
	if !converted.IsPositive() {
		return ConvertResult{}, fmt.Errorf("%w: converted amount rounds to zero", ErrInvalidAmount)
	}
	if !money.WithinLimit(converted) {
		return ConvertResult{}, fmt.Errorf("%w: converted amount exceeds %s", ErrInvalidAmount, money.MaxAmount)
	}

	var (
		res ConvertResult
		txn txlog.Transaction
	)
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		w, err := tx.WalletForUser(ctx, in.UserID)
		if err != nil {
			return err
		}

		src, dst, err := lockPair(ctx, tx, w.ID, from, to)
		if err != nil {
			return err
		}
		if src.Amount.LessThan(in.Amount) {
			return ErrInsufficientBalance
		}

		srcAfter := src.Amount.Sub(in.Amount)
		dstAfter := dst.Amount.Add(converted)
		if !money.WithinLimit(dstAfter) {
			return fmt.Errorf("%w: %s balance would exceed %s", ErrInvalidAmount, to, money.MaxAmount)
		}
		if _, err := tx.UpsertBalance(ctx, w.ID, from, srcAfter); err != nil {
			return err
		}
		if _, err := tx.UpsertBalance(ctx, w.ID, to, dstAfter); err != nil {
			return err
		}

		txn = txlog.Transaction{
			ID:           uuid.NewString(),
			UserID:       in.UserID,
			Type:         typ,
			FromCurrency: from,
			ToCurrency:   to,
			FromAmount:   decimal.NewNullDecimal(in.Amount),
			ToAmount:     decimal.NewNullDecimal(converted),
			ExchangeRate: decimal.NewNullDecimal(rate),
			Status:       txlog.StatusCompleted,
			Metadata: map[string]string{
				"fromBalanceBefore": src.Amount.String(),
				"fromBalanceAfter":  srcAfter.String(),
				"toBalanceBefore":   dst.Amount.String(),
				"toBalanceAfter":    dstAfter.String(),
			},
			CreatedAt: c.now().UTC(),
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}

		res = ConvertResult{
			TransactionID: txn.ID,
			Type:          typ,
			FromCurrency:  from,
			ToCurrency:    to,
			FromAmount:    in.Amount,
			ToAmount:      converted,
			ExchangeRate:  rate,
			FromBalance:   srcAfter,
			ToBalance:     dstAfter,
			CreatedAt:     txn.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return ConvertResult{}, classify(ctx, err)
	}

	c.publish(ctx, txn)
	return res, nil
}

// lockPair locks both balance rows in ascending currency order so that two
// conversions over the same pair in opposite directions cannot deadlock. The
// source must exist and cover amount; the destination is created on demand.
func lockPair(ctx context.Context, tx Tx, walletID, from, to string) (src, dst wallet.Balance, err error) {
	order := []string{from, to}
	if to < from {
		order = []string{to, from}
	}
	for _, code := range order {
		create := code == to
		b, found, err := tx.LockBalance(ctx, walletID, code, create)
		if err != nil {
			return src, dst, err
		}
		if code == from {
			if !found {
				return src, dst, ErrInsufficientBalance
			}
			src = b
		} else {
			dst = b
		}
	}
	return src, dst, nil
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps context expiry onto ErrOperationTimeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrOperationTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOperationTimeout, err)
	}
	return err
}

func (c *Coordinator) publish(ctx context.Context, txn txlog.Transaction) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(context.WithoutCancel(ctx), events.FromTransaction(txn)); err != nil {
		c.metrics.RecordEventFailure()
		c.logger.Error("publish ledger event",
			slog.String("transaction_id", txn.ID),
			slog.Any("error", err),
		)
	}
}

func (c *Coordinator) observe(op string, start time.Time, err error) {
	c.metrics.ObserveLedgerOp(op, outcome(err), time.Since(start))
}

func (c *Coordinator) logFailure(op, userID string, err error, attrs ...any) {
	attrs = append([]any{
		slog.String("operation", op),
		slog.String("user_id", userID),
		slog.Bool("retryable", IsRetryable(err)),
		slog.Any("error", err),
	}, attrs...)
	if IsRetryable(err) {
		c.logger.Warn("ledger operation failed", attrs...)
		return
	}
	c.logger.Info("ledger operation rejected", attrs...)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, ErrSameCurrency), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedCurrency):
		return "invalid_input"
	case errors.Is(err, ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrOperationTimeout):
		return "timeout"
	default:
		return "error"
	}
}
