// Package signal de-duplicates alerts across scans and keeps the recent
// emitted signals for the HTTP API.
package signal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/binance-pattern-signals/internal/pattern"
)

// DefaultDedupTTL is how long an alert key is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Deduper reports whether an alert key was already seen, recording it if not.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Key identifies one alert: the same detector firing on the same candle.
func Key(sig pattern.Signal) string {
	return strings.Join([]string{
		sig.Symbol,
		sig.Interval,
		string(sig.SignalType),
		string(sig.Direction),
		strconv.FormatInt(sig.KlineTime, 10),
	}, "|")
}

// MemoryDeduper is an in-process Deduper with per-key expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a deduper remembering keys for ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return false, nil
}

// Len returns the number of live keys.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// RedisDeduper shares alert keys between processes with SET NX EX.
type RedisDeduper struct {
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewRedisDeduper creates a Redis deduper. If namespace is empty, it uses "alerts".
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, namespace string) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if namespace == "" {
		namespace = "alerts"
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, namespace: namespace}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	created, err := d.rdb.SetNX(ctx, d.namespace+":"+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !created, nil
}
