package rates

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

type memoryRatesRepo struct {
	taxRates map[string]TaxRates
	quotes   map[money.Currency]Quote
	getCalls int
}

func newMemoryRatesRepo() *memoryRatesRepo {
	return &memoryRatesRepo{
		taxRates: make(map[string]TaxRates),
		quotes:   make(map[money.Currency]Quote),
	}
}

func (r *memoryRatesRepo) GetTaxRates(ctx context.Context, ncm string) (TaxRates, error) {
	t, ok := r.taxRates[ncm]
	if !ok {
		return TaxRates{}, ErrNCMNotFound
	}
	return t, nil
}

func (r *memoryRatesRepo) UpsertTaxRates(ctx context.Context, rates TaxRates) error {
	r.taxRates[rates.NCM] = rates
	return nil
}

func (r *memoryRatesRepo) GetQuote(ctx context.Context, currency money.Currency) (Quote, error) {
	r.getCalls++
	q, ok := r.quotes[currency]
	if !ok {
		return Quote{}, ErrQuoteNotFound
	}
	return q, nil
}

func (r *memoryRatesRepo) ListQuotes(ctx context.Context) ([]Quote, error) {
	var out []Quote
	for _, q := range r.quotes {
		out = append(out, q)
	}
	return out, nil
}

func (r *memoryRatesRepo) UpsertQuote(ctx context.Context, currency money.Currency, rate decimal.Decimal, fetchedAt time.Time) error {
	r.quotes[currency] = Quote{Currency: currency, Rate: rate, FetchedAt: fetchedAt}
	return nil
}

func newTestCache(t *testing.T) *QuoteCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQuoteCache(client, time.Hour)
}

func TestLookupRejectsMalformedNCM(t *testing.T) {
	svc := NewService(newMemoryRatesRepo(), newTestCache(t), time.Hour)

	_, err := svc.Lookup(context.Background(), "1234")
	require.ErrorIs(t, err, ErrInvalidNCM)

	_, err = svc.Lookup(context.Background(), "1234567a")
	require.ErrorIs(t, err, ErrInvalidNCM)

	_, err = svc.Lookup(context.Background(), "12345678")
	require.ErrorIs(t, err, ErrNCMNotFound)
}

func TestLookupReturnsStoredRates(t *testing.T) {
	repo := newMemoryRatesRepo()
	svc := NewService(repo, newTestCache(t), time.Hour)
	ctx := context.Background()

	rates := TaxRates{
		NCM:    "84713012",
		II:     decimal.NewFromInt(10),
		IPI:    decimal.NewFromInt(5),
		PIS:    decimal.NewFromFloat(2.1),
		COFINS: decimal.NewFromFloat(9.65),
	}
	require.NoError(t, svc.UpsertTaxRates(ctx, rates))

	got, err := svc.Lookup(ctx, "84713012")
	require.NoError(t, err)
	require.True(t, got.II.Equal(rates.II))
	require.True(t, got.COFINS.Equal(rates.COFINS))
}

func TestQuoteBRLIsAlwaysOne(t *testing.T) {
	svc := NewService(newMemoryRatesRepo(), newTestCache(t), time.Hour)

	quote, err := svc.Quote(context.Background(), money.BRL)
	require.NoError(t, err)
	require.True(t, quote.Rate.Equal(decimal.NewFromInt(1)))
}

func TestQuoteCacheAside(t *testing.T) {
	repo := newMemoryRatesRepo()
	svc := NewService(repo, newTestCache(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.UpsertQuote(ctx, money.USD, decimal.NewFromFloat(5.43)))
	repo.getCalls = 0

	// Upsert primed the cache, so lookups bypass the repository.
	for i := 0; i < 3; i++ {
		quote, err := svc.Quote(ctx, money.USD)
		require.NoError(t, err)
		require.True(t, quote.Rate.Equal(decimal.NewFromFloat(5.43)))
	}
	require.Zero(t, repo.getCalls)
}

func TestQuoteStalenessBlocks(t *testing.T) {
	repo := newMemoryRatesRepo()
	svc := NewService(repo, newTestCache(t), 24*time.Hour)
	ctx := context.Background()

	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	svc.nowFn = func() time.Time { return now }
	repo.quotes[money.EUR] = Quote{
		Currency:  money.EUR,
		Rate:      decimal.NewFromFloat(6.02),
		FetchedAt: now.Add(-48 * time.Hour),
	}

	_, err := svc.Quote(ctx, money.EUR)
	require.ErrorIs(t, err, ErrQuoteStale)

	_, err = svc.Rate(ctx, money.EUR)
	require.ErrorIs(t, err, ErrQuoteStale)
}

func TestUpsertQuoteValidation(t *testing.T) {
	svc := NewService(newMemoryRatesRepo(), newTestCache(t), time.Hour)
	ctx := context.Background()

	require.Error(t, svc.UpsertQuote(ctx, money.BRL, decimal.NewFromInt(1)))
	require.ErrorIs(t, svc.UpsertQuote(ctx, money.USD, decimal.Zero), ErrInvalidRate)
	require.ErrorIs(t, svc.UpsertQuote(ctx, money.USD, decimal.NewFromInt(-2)), ErrInvalidRate)
}

func TestRefreshQuotesPrimesCache(t *testing.T) {
	repo := newMemoryRatesRepo()
	svc := NewService(repo, newTestCache(t), time.Hour)
	ctx := context.Background()

	now := time.Now()
	repo.quotes[money.USD] = Quote{Currency: money.USD, Rate: decimal.NewFromFloat(5.50), FetchedAt: now}
	repo.quotes[money.JPY] = Quote{Currency: money.JPY, Rate: decimal.NewFromFloat(0.034), FetchedAt: now}

	n, err := svc.RefreshQuotes(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	repo.getCalls = 0
	quote, err := svc.Quote(ctx, money.JPY)
	require.NoError(t, err)
	require.True(t, quote.Rate.Equal(decimal.NewFromFloat(0.034)))
	require.Zero(t, repo.getCalls)
}
