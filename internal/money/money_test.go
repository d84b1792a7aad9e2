package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"500", false},
		{"0.00000001", false},
		{" 12.5 ", false},
		{"0", true},
		{"-1", true},
		{"0.000000001", true},
		{"abc", true},
		{"999999999999999999.99999999", false},
		{"1000000000000000000", true},
		{"1e21", true},
	}
	for _, tc := range cases {
		_, err := ParseAmount(tc.in)
		if tc.wantErr {
			assert.Truef(t, errors.Is(err, ErrInvalidAmount), "input %q: got %v", tc.in, err)
		} else {
			assert.NoErrorf(t, err, "input %q", tc.in)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode(" ngn ")
	require.NoError(t, err)
	assert.Equal(t, "NGN", code)

	for _, bad := range []string{"", "US", "USDT", "U5D"} {
		_, err := NormalizeCode(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrencyCode, bad)
	}
}

func TestRound(t *testing.T) {
	got := Round(decimal.RequireFromString("1.123456789"))
	assert.True(t, got.Equal(decimal.RequireFromString("1.12345679")), got.String())
}

func TestWithinLimit(t *testing.T) {
	assert.True(t, WithinLimit(MaxAmount))
	assert.False(t, WithinLimit(MaxAmount.Add(decimal.New(1, -Scale))))
	assert.Equal(t, "999999999999999999.99999999", MaxAmount.String())
}
