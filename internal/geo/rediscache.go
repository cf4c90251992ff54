package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"holycluster/internal/spotmodel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const cacheKeyPrefix = "geo:cache:"

// RedisCache implements Cache against a Redis/Valkey client, storing
// each GeoRecord as a small JSON blob under the uppercased callsign.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+callsign).Bytes()
	if errors.Is(err, redis.Nil) {
		return spotmodel.GeoRecord{}, false, nil
	}
	if err != nil {
		return spotmodel.GeoRecord{}, false, fmt.Errorf("geo: cache get: %w", err)
	}
	var record spotmodel.GeoRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return spotmodel.GeoRecord{}, false, fmt.Errorf("geo: cache decode: %w", err)
	}
	return record, true, nil
}

func (c *RedisCache) Set(ctx context.Context, callsign string, record spotmodel.GeoRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("geo: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+callsign, raw, ttl).Err(); err != nil {
		return fmt.Errorf("geo: cache set: %w", err)
	}
	return nil
}

// All scans every cached callsign and returns its resolved GeoRecord,
// for the /geocache/all diagnostics endpoint.
func (c *RedisCache) All(ctx context.Context) (map[string]spotmodel.GeoRecord, error) {
	out := make(map[string]spotmodel.GeoRecord)
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var record spotmodel.GeoRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		out[strings.TrimPrefix(key, cacheKeyPrefix)] = record
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("geo: cache scan: %w", err)
	}
	return out, nil
}
