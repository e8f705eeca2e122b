// Package rates holds the two lookup tables the simulator and the ledger
// depend on: NCM tax rates and PTAX exchange quotes.
package rates

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

var (
	// ErrNCMNotFound indicates no tax rates are registered for the NCM code.
	ErrNCMNotFound = errors.New("rates: ncm not found")
	// ErrInvalidNCM indicates a malformed NCM code.
	ErrInvalidNCM = errors.New("rates: ncm must be 8 digits")
	// ErrQuoteNotFound indicates no PTAX quote exists for the currency.
	ErrQuoteNotFound = errors.New("rates: quote not found")
	// ErrQuoteStale indicates the PTAX quote is older than the staleness
	// window. A stale rate must block the dependent computation, never be
	// silently substituted.
	ErrQuoteStale = errors.New("rates: quote is stale")
	// ErrInvalidRate indicates a non-positive rate value.
	ErrInvalidRate = errors.New("rates: rate must be positive")
)

var ncmPattern = regexp.MustCompile(`^\d{8}$`)

// ValidNCM reports whether the code is a well-formed 8-digit NCM.
func ValidNCM(code string) bool {
	return ncmPattern.MatchString(code)
}

// TaxRates carries the import tax percentages for one NCM code.
type TaxRates struct {
	NCM    string
	II     decimal.Decimal
	IPI    decimal.Decimal
	PIS    decimal.Decimal
	COFINS decimal.Decimal
}

// Quote is a PTAX reference rate for one currency against BRL.
type Quote struct {
	Currency  money.Currency
	Rate      decimal.Decimal
	FetchedAt time.Time
}

// RateTable resolves tax rates by NCM code. Consumed by the simulator.
type RateTable interface {
	Lookup(ctx context.Context, ncm string) (TaxRates, error)
}

// FXSource resolves a fresh PTAX rate for a currency. Consumed by the
// settlement engine; BRL always resolves to 1.
type FXSource interface {
	Rate(ctx context.Context, currency money.Currency) (decimal.Decimal, error)
}
