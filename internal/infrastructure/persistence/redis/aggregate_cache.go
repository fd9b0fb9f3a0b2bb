// Package redis implements Redis caching for PoraKhela.
package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCache adapts Cache to the read-through interface the query
// handlers expect. A cold or unreachable Redis degrades to store reads.
type AggregateCache struct {
	cache *Cache
}

// NewAggregateCache creates a new AggregateCache.
func NewAggregateCache(cache *Cache) *AggregateCache {
	return &AggregateCache{cache: cache}
}

// GetJSON retrieves a cached aggregate. Any error counts as a miss to
// the caller.
func (a *AggregateCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	return a.cache.Get(ctx, PrefixAggregate+key, dest)
}

// SetJSON stores an aggregate with the given TTL.
func (a *AggregateCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLAggregate
	}
	return a.cache.Set(ctx, PrefixAggregate+key, value, ttl)
}

// InvalidateUser drops every cached aggregate for a user. Called after a
// submission commits so the next dashboard read sees fresh totals.
func (a *AggregateCache) InvalidateUser(ctx context.Context, userID string) error {
	return a.cache.DeleteByPattern(ctx, PrefixAggregate+"*"+userID+"*")
}
