package supervisor

import (
	"context"
	"time"

	"holycluster/internal/dedup"
	"holycluster/internal/geo"
	"holycluster/internal/metrics"
	"holycluster/internal/spotmodel"
)

// countingCache decorates a *geo.RedisCache with hit/miss counters,
// leaving the cache's own behavior untouched. Embedding the concrete
// type (rather than the geo.Cache interface) keeps the extra All
// method httpapi.GeoCache needs.
type countingCache struct {
	*geo.RedisCache
	reg *metrics.Registry
}

func (c countingCache) Get(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error) {
	record, ok, err := c.RedisCache.Get(ctx, callsign)
	if err == nil {
		if ok {
			c.reg.GeoCacheHits.Inc()
		} else {
			c.reg.GeoCacheMisses.Inc()
		}
	}
	return record, ok, err
}

// countingDedup decorates a dedup.Deduplicator with allow/reject counters.
type countingDedup struct {
	dedup.Deduplicator
	reg *metrics.Registry
}

func (d countingDedup) Allow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	allowed, err := d.Deduplicator.Allow(ctx, key, ttl)
	if err == nil {
		if allowed {
			d.reg.DedupMisses.Inc()
		} else {
			d.reg.DedupHits.Inc()
		}
	}
	return allowed, err
}
