package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("USD")
	require.NoError(t, err)
	require.Equal(t, USD, c)

	_, err = ParseCurrency("usd")
	require.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = ParseCurrency("XAU")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestCurrenciesStableOrder(t *testing.T) {
	require.Equal(t, []Currency{BRL, USD, EUR, GBP, CHF, JPY}, Currencies())
	for _, c := range Currencies() {
		require.True(t, c.Valid())
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.005", "10.01"},
		{"10.004", "10.00"},
		{"-10.005", "-10.01"},
		{"2941.0236", "2941.02"},
	}
	for _, tc := range cases {
		got := Round2(decimal.RequireFromString(tc.in))
		require.Equal(t, tc.want, got.StringFixed(2), "round %s", tc.in)
	}
}

func TestPercent(t *testing.T) {
	require.True(t, Percent(decimal.NewFromInt(18)).Equal(decimal.RequireFromString("0.18")))
	require.True(t, Percent(decimal.RequireFromString("9.65")).Equal(decimal.RequireFromString("0.0965")))
}

func TestFormatBRL(t *testing.T) {
	require.Equal(t, "R$ 16.339,02", FormatBRL(decimal.RequireFromString("16339.02")))
	require.Equal(t, "R$ 0,00", FormatBRL(decimal.Zero))
	require.Equal(t, "R$ 1.633,90", FormatBRL(decimal.RequireFromString("1633.9")))
}
