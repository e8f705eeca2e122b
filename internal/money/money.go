// Package money holds the currency enum and decimal helpers shared by the
// simulation and ledger domains. BRL is the settlement currency; every other
// currency needs a PTAX quote before it can be converted.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency enumerates the currencies the back office settles in.
type Currency string

const (
	BRL Currency = "BRL"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

// ErrUnknownCurrency indicates a currency code outside the supported set.
var ErrUnknownCurrency = fmt.Errorf("money: unknown currency")

var supported = map[Currency]struct{}{
	BRL: {}, USD: {}, EUR: {}, GBP: {}, CHF: {}, JPY: {},
}

// ParseCurrency validates a currency code against the closed set.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(code)
	if _, ok := supported[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Valid reports whether the currency belongs to the supported set.
func (c Currency) Valid() bool {
	_, ok := supported[c]
	return ok
}

// Currencies returns the supported set in a stable order.
func Currencies() []Currency {
	return []Currency{BRL, USD, EUR, GBP, CHF, JPY}
}

// Round2 rounds a monetary value to 2 fraction digits, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent converts a percentage figure (e.g. 18) into its fraction (0.18).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(decimal.NewFromInt(100))
}

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders a decimal as a pt-BR formatted BRL amount for display
// fields. Core computations never depend on this.
func FormatBRL(d decimal.Decimal) string {
	f, _ := Round2(d).Float64()
	return brlPrinter.Sprintf("R$ %.2f", f)
}
