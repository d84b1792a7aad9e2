// Package money holds the amount and currency-code rules shared by the ledger
// and the rate cache.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits persisted for amounts and rates.
const Scale int32 = 8

// MaxAmount is the largest value a NUMERIC(26,8) column holds.
var MaxAmount = decimal.New(1, 18).Sub(decimal.New(1, -Scale))

var (
	// ErrInvalidAmount is returned for amounts that are not strictly positive,
	// exceed MaxAmount or carry more fractional digits than can be stored.
	ErrInvalidAmount = errors.New("amount must be a positive decimal below 1e18 with at most 8 fractional digits")
	// ErrInvalidCurrencyCode is returned for codes that are not three ASCII letters.
	ErrInvalidCurrencyCode = errors.New("currency code must be three letters")
)

// ValidateAmount checks that amount is strictly positive, at most MaxAmount
// and representable at Scale without rounding.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !WithinLimit(amount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrInvalidAmount
	}
	return nil
}

// WithinLimit reports whether d fits a stored amount column.
func WithinLimit(d decimal.Decimal) bool {
	return d.LessThanOrEqual(MaxAmount)
}

// ParseAmount parses a decimal string and validates it with ValidateAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// NormalizeCode upper-cases and validates a three-letter currency code.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", ErrInvalidCurrencyCode
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrencyCode
		}
	}
	return c, nil
}

// Round rounds d half away from zero to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}
