// Package cache provides a Redis-backed read-through cache for ledger stats,
// shielding the store from dashboard polling.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"medledger/internal/ledger"
	id "medledger/pkg/domain"
)

// DefaultTTL keeps cached stats fresh enough for a polling dashboard without
// re-counting on every poll.
const DefaultTTL = 15 * time.Second

// RedisStatsCache implements ledger.StatsCache. Failures are logged and
// treated as cache misses; the cache never blocks the read path.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the RedisStatsCache.
type Option func(*RedisStatsCache)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisStatsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets a logger for cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisStatsCache) {
		c.logger = logger
	}
}

// NewRedisStatsCache creates a stats cache over the given Redis client.
func NewRedisStatsCache(client *redis.Client, opts ...Option) *RedisStatsCache {
	c := &RedisStatsCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisStatsCache) Get(ctx context.Context, tenantID id.TenantID) (ledger.Stats, bool) {
	raw, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WarnContext(ctx, "stats cache read failed", "error", err, "tenant_id", tenantID)
		}
		return ledger.Stats{}, false
	}
	var s ledger.Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return ledger.Stats{}, false
	}
	return s, true
}

func (c *RedisStatsCache) Set(ctx context.Context, tenantID id.TenantID, s ledger.Stats) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(tenantID), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "stats cache write failed", "error", err, "tenant_id", tenantID)
	}
}

func (c *RedisStatsCache) key(tenantID id.TenantID) string {
	return "medledger:stats:" + tenantID.String()
}
