package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/binance-pattern-signals/internal/kline"
)

// CachingFetcher decorates a Fetcher with Redis caching. Redis failures
// never fail a fetch.
type CachingFetcher struct {
	inner     Fetcher
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

// NewCachingFetcher decorates inner with Redis caching.
// If ttl is 0, it defaults to 1 minute. If namespace is empty, it uses "klines".
// A nil client bypasses the cache.
func NewCachingFetcher(rdb *redis.Client, ttl time.Duration, inner Fetcher, namespace string) *CachingFetcher {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if namespace == "" {
		namespace = "klines"
	}
	return &CachingFetcher{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		now:       time.Now,
	}
}

// Klines checks the cache first, then falls back to the inner fetcher.
func (c *CachingFetcher) Klines(ctx context.Context, symbol, interval string, limit int) ([]kline.Kline, error) {
	if c.rdb == nil {
		return c.inner.Klines(ctx, symbol, interval, limit)
	}

	key := c.cacheKey(symbol, interval, limit)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []kline.Kline
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if ttl := c.expiry(out); ttl > 0 {
		if b, err := json.Marshal(out); err == nil {
			_ = c.rdb.Set(ctx, key, b, ttl).Err()
		}
	}
	return out, nil
}

// expiry caps the TTL at the close of the forming kline so a cached window
// never hides a newly closed candle.
func (c *CachingFetcher) expiry(klines []kline.Kline) time.Duration {
	if len(klines) == 0 {
		return 0
	}
	last := klines[len(klines)-1]
	if last.IsClosed {
		return c.ttl
	}
	left := last.CloseTime.Sub(c.now())
	if left <= 0 {
		return 0
	}
	if left < c.ttl {
		return left
	}
	return c.ttl
}

func (c *CachingFetcher) cacheKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		c.namespace,
		safe(symbol),
		safe(interval),
		limit,
	)
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
