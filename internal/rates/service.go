package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

// Service serves tax-rate and PTAX lookups with a cache-aside policy and a
// staleness guard. It returns typed errors only; callers decide messaging.
type Service struct {
	repo       Repository
	cache      *QuoteCache
	staleAfter time.Duration
	group      singleflight.Group
	nowFn      func() time.Time
}

// NewService constructs the rates service. staleAfter bounds how old a PTAX
// quote may be before Rate and Quote refuse to serve it.
func NewService(repo Repository, cache *QuoteCache, staleAfter time.Duration) *Service {
	return &Service{repo: repo, cache: cache, staleAfter: staleAfter, nowFn: time.Now}
}

// Lookup resolves tax rates for an NCM code.
func (s *Service) Lookup(ctx context.Context, ncm string) (TaxRates, error) {
	if !ValidNCM(ncm) {
		return TaxRates{}, fmt.Errorf("%w: %q", ErrInvalidNCM, ncm)
	}
	return s.repo.GetTaxRates(ctx, ncm)
}

// UpsertTaxRates stores the tax schedule for an NCM code.
func (s *Service) UpsertTaxRates(ctx context.Context, rates TaxRates) error {
	if !ValidNCM(rates.NCM) {
		return fmt.Errorf("%w: %q", ErrInvalidNCM, rates.NCM)
	}
	for _, pct := range []decimal.Decimal{rates.II, rates.IPI, rates.PIS, rates.COFINS} {
		if pct.IsNegative() {
			return ErrInvalidRate
		}
	}
	return s.repo.UpsertTaxRates(ctx, rates)
}

// Quote returns the PTAX quote for a currency, refusing stale data.
// BRL is the settlement currency and always quotes at 1.
func (s *Service) Quote(ctx context.Context, currency money.Currency) (Quote, error) {
	if !currency.Valid() {
		return Quote{}, fmt.Errorf("%w: %q", money.ErrUnknownCurrency, currency)
	}
	if currency == money.BRL {
		return Quote{Currency: money.BRL, Rate: decimal.NewFromInt(1), FetchedAt: s.nowFn()}, nil
	}

	quote, err := s.cache.Get(ctx, currency)
	if errors.Is(err, ErrQuoteNotFound) {
		quote, err = s.loadQuote(ctx, currency)
	}
	if err != nil {
		return Quote{}, err
	}
	if s.nowFn().Sub(quote.FetchedAt) > s.staleAfter {
		return Quote{}, fmt.Errorf("%w: %s fetched at %s", ErrQuoteStale, currency, quote.FetchedAt.Format(time.RFC3339))
	}
	return quote, nil
}

// Rate implements FXSource.
func (s *Service) Rate(ctx context.Context, currency money.Currency) (decimal.Decimal, error) {
	quote, err := s.Quote(ctx, currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return quote.Rate, nil
}

// loadQuote reads through to the repository, collapsing concurrent misses
// for the same currency.
func (s *Service) loadQuote(ctx context.Context, currency money.Currency) (Quote, error) {
	v, err, _ := s.group.Do(string(currency), func() (any, error) {
		quote, err := s.repo.GetQuote(ctx, currency)
		if err != nil {
			return Quote{}, err
		}
		if err := s.cache.Put(ctx, quote); err != nil {
			return Quote{}, err
		}
		return quote, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

// UpsertQuote stores a PTAX quote and re-primes the cache.
func (s *Service) UpsertQuote(ctx context.Context, currency money.Currency, rate decimal.Decimal) error {
	if !currency.Valid() || currency == money.BRL {
		return fmt.Errorf("%w: %q", money.ErrUnknownCurrency, currency)
	}
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	fetchedAt := s.nowFn()
	if err := s.repo.UpsertQuote(ctx, currency, rate, fetchedAt); err != nil {
		return err
	}
	return s.cache.Put(ctx, Quote{Currency: currency, Rate: rate, FetchedAt: fetchedAt})
}

// ListQuotes returns every stored quote regardless of freshness, for the
// back-office rate screen.
func (s *Service) ListQuotes(ctx context.Context) ([]Quote, error) {
	return s.repo.ListQuotes(ctx)
}

// RefreshQuotes re-primes the cache from the persistent table. The worker
// runs this on a cron schedule.
func (s *Service) RefreshQuotes(ctx context.Context) (int, error) {
	quotes, err := s.repo.ListQuotes(ctx)
	if err != nil {
		return 0, err
	}
	for _, q := range quotes {
		if err := s.cache.Put(ctx, q); err != nil {
			return 0, err
		}
	}
	return len(quotes), nil
}
