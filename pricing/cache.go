package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuoteCache holds the most recently computed quote per (from_token,
// to_token) pair so repeated requests within the validity window skip the
// oracle round trip.
type QuoteCache interface {
	Get(ctx context.Context, fromToken, toToken string) (*Quote, bool)
	Put(ctx context.Context, fromToken, toToken string, quote *Quote)
}

func cacheKey(fromToken, toToken string) string {
	return "bridge:quote:" + fromToken + ":" + toToken
}

// redisQuoteCache is a QuoteCache backed by Redis with a TTL matching the
// quote's own validity window.
type redisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQuoteCache returns a QuoteCache backed by client. ttl bounds how
// long an entry can live even if never explicitly expired (defense in
// depth alongside each quote's own ValidUntil).
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) QuoteCache {
	return &redisQuoteCache{client: client, ttl: ttl}
}

func (c *redisQuoteCache) Get(ctx context.Context, fromToken, toToken string) (*Quote, bool) {
	data, err := c.client.Get(ctx, cacheKey(fromToken, toToken)).Bytes()
	if err != nil {
		return nil, false
	}
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false
	}
	return &q, true
}

func (c *redisQuoteCache) Put(ctx context.Context, fromToken, toToken string, quote *Quote) {
	data, err := json.Marshal(quote)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(fromToken, toToken), data, c.ttl)
}

// memQuoteCache is an in-process QuoteCache, used where Redis isn't
// configured and for tests.
type memQuoteCache struct {
	entries map[string]*Quote
}

// NewMemQuoteCache returns an in-process QuoteCache.
func NewMemQuoteCache() QuoteCache {
	return &memQuoteCache{entries: map[string]*Quote{}}
}

func (c *memQuoteCache) Get(ctx context.Context, fromToken, toToken string) (*Quote, bool) {
	q, ok := c.entries[cacheKey(fromToken, toToken)]
	return q, ok
}

func (c *memQuoteCache) Put(ctx context.Context, fromToken, toToken string, quote *Quote) {
	c.entries[cacheKey(fromToken, toToken)] = quote
}
