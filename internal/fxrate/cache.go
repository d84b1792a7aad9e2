package fxrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/congo-pay/fxledger/internal/metrics"
	"github.com/congo-pay/fxledger/internal/money"
	"github.com/congo-pay/fxledger/internal/ttlcache"
)

// ErrRateUnavailable is returned when the provider fails and no rate for the
// pair was ever cached. Callers may retry later.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// CurrencySource supplies the active currency list and lets it be reloaded.
type CurrencySource interface {
	ActiveCodes(ctx context.Context) ([]string, error)
	Invalidate()
}

type rateTable = map[string]decimal.Decimal

// Config tunes a Cache.
type Config struct {
	TTL             time.Duration
	ProviderTimeout time.Duration
	Clock           func() time.Time
	Metrics         *metrics.Collector
	Breaker         *gobreaker.Settings
}

// Cache serves exchange rates keyed by source currency. Entries are fresh for
// the configured TTL; after that the provider is consulted and, should it fail,
// the last known table is served instead.
type Cache struct {
	provider   Provider
	currencies CurrencySource
	rates      *ttlcache.Cache[string, rateTable]
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
	timeout    time.Duration
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewCache builds a rate cache in front of provider.
func NewCache(provider Provider, currencies CurrencySource, cfg Config, logger *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 5 * time.Second
	}
	var opts []ttlcache.Option[string, rateTable]
	if cfg.Clock != nil {
		opts = append(opts, ttlcache.WithClock[string, rateTable](cfg.Clock))
	}

	c := &Cache{
		provider:   provider,
		currencies: currencies,
		rates:      ttlcache.New[string, rateTable](cfg.TTL, opts...),
		timeout:    cfg.ProviderTimeout,
		metrics:    cfg.Metrics,
		logger:     logger,
	}

	settings := gobreaker.Settings{
		Name:        "fx-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	if cfg.Breaker != nil {
		settings = *cfg.Breaker
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		switch to {
		case gobreaker.StateClosed:
			c.metrics.SetCircuitState(metrics.CircuitClosed)
		case gobreaker.StateOpen:
			c.metrics.SetCircuitState(metrics.CircuitOpen)
		case gobreaker.StateHalfOpen:
			c.metrics.SetCircuitState(metrics.CircuitHalfOpen)
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)

	return c
}

// GetRate returns how many units of to one unit of from buys.
func (c *Cache) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		c.metrics.RecordRateLookup(metrics.SourceIdentity)
		return decimal.NewFromInt(1), nil
	}

	if table, ok := c.rates.Get(from); ok {
		rate, found := table[to]
		if !found {
			c.metrics.RecordRateLookup(metrics.SourceUnavailable)
			return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, from, to)
		}
		c.metrics.RecordRateLookup(metrics.SourceFresh)
		return rate, nil
	}

	table, err := c.refresh(ctx, from)
	if err == nil {
		if rate, found := table[to]; found {
			c.metrics.RecordRateLookup(metrics.SourceProvider)
			return rate, nil
		}
	}

	if stale, storedAt, ok := c.rates.GetStale(from); ok {
		if rate, found := stale[to]; found {
			c.metrics.RecordRateLookup(metrics.SourceStale)
			c.logger.Warn("serving stale exchange rate",
				slog.String("from", from),
				slog.String("to", to),
				slog.Time("stored_at", storedAt),
				slog.Any("error", err),
			)
			return rate, nil
		}
	}

	c.metrics.RecordRateLookup(metrics.SourceUnavailable)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s: %v", ErrRateUnavailable, from, to, err)
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, from, to)
}

// GetAllRates returns the rate from base to every other active currency.
// Targets whose rate cannot be obtained map to an invalid NullDecimal.
func (c *Cache) GetAllRates(ctx context.Context, base string) (map[string]decimal.NullDecimal, error) {
	codes, err := c.currencies.ActiveCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	out := make(map[string]decimal.NullDecimal, len(codes))
	for _, code := range codes {
		if code == base {
			continue
		}
		rate, err := c.GetRate(ctx, base, code)
		if err != nil {
			out[code] = decimal.NullDecimal{}
			continue
		}
		out[code] = decimal.NewNullDecimal(rate)
	}
	return out, nil
}

// InvalidateCurrencies drops the cached currency list.
func (c *Cache) InvalidateCurrencies() {
	c.currencies.Invalidate()
}

// Clear drops every cached rate table, fresh or stale.
func (c *Cache) Clear() {
	c.rates.Clear()
}

// refresh fetches the table for base once per burst of concurrent callers.
// The fetch runs on a context detached from any single caller so one caller
// giving up does not fail the others.
func (c *Cache) refresh(ctx context.Context, base string) (rateTable, error) {
	ch := c.group.DoChan(base, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := time.Now()
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.provider.Latest(fetchCtx, base)
		})
		c.metrics.ObserveProviderCall(time.Since(start), err)
		if err != nil {
			return nil, err
		}

		table := make(rateTable, len(res.(rateTable)))
		for code, rate := range res.(rateTable) {
			if r := rate.Round(money.Scale); r.IsPositive() {
				table[code] = r
			}
		}
		c.rates.Set(base, table)
		return table, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(rateTable), nil
	}
}
