package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

const quoteKeyPrefix = "ptax:"

// QuoteCache keeps PTAX quotes in Redis in front of the persistent table.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuoteCache constructs the cache. TTL should match the staleness window
// so an expired key and a stale quote mean the same thing.
func NewQuoteCache(client *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: client, ttl: ttl}
}

type cachedQuote struct {
	Rate      string    `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Get returns the cached quote for the currency, or ErrQuoteNotFound on miss.
func (c *QuoteCache) Get(ctx context.Context, currency money.Currency) (Quote, error) {
	if c == nil || c.client == nil {
		return Quote{}, ErrQuoteNotFound
	}
	raw, err := c.client.Get(ctx, quoteKeyPrefix+string(currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, ErrQuoteNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	var cached cachedQuote
	if err := json.Unmarshal(raw, &cached); err != nil {
		return Quote{}, err
	}
	rate, err := decimal.NewFromString(cached.Rate)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Currency: currency, Rate: rate, FetchedAt: cached.FetchedAt}, nil
}

// Put stores a quote under the configured TTL.
func (c *QuoteCache) Put(ctx context.Context, quote Quote) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cachedQuote{Rate: quote.Rate.String(), FetchedAt: quote.FetchedAt})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, quoteKeyPrefix+string(quote.Currency), raw, c.ttl).Err()
}

// Invalidate removes a currency from the cache.
func (c *QuoteCache) Invalidate(ctx context.Context, currency money.Currency) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, quoteKeyPrefix+string(currency)).Err()
}
