// Package dedup suppresses spots already seen, across all cluster
// sources, within a short TTL window. The Redis-backed implementation
// follows the same "set if absent, TTL keeps the window short" contract
// as the teacher's in-memory peer.dedupeCache, but delegates the
// atomicity to the key-value store's SET ... NX so multiple process
// instances (or multiple ClusterSessions in one process) can share one
// dedup window.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator reports whether a key has been seen before within its TTL.
type Deduplicator interface {
	// Allow returns true if key was not seen before (and is now marked
	// seen for ttl), false if it was already present.
	Allow(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const keyPrefix = "dedup:spot:"

// RedisDeduplicator backs Allow with SET key 1 EX ttl NX.
type RedisDeduplicator struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis/Valkey client.
func NewRedis(client *redis.Client) *RedisDeduplicator {
	return &RedisDeduplicator{client: client}
}

func (d *RedisDeduplicator) Allow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: setnx: %w", err)
	}
	return ok, nil
}

// InMemory is a mutex+map fallback implementing the same contract,
// adapted directly from the teacher's peer.dedupeCache for use in tests
// and single-process deployments without a key-value store.
type InMemory struct {
	mu    sync.Mutex
	items map[string]time.Time
}

// NewInMemory constructs an empty in-memory deduplicator.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]time.Time)}
}

func (d *InMemory) Allow(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if expiry, ok := d.items[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.items[key] = now.Add(ttl)
	return true, nil
}

// Prune evicts expired entries; callers should run this periodically to
// bound memory growth (mirrors peer.dedupeCache.prune).
func (d *InMemory) Prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, expiry := range d.items {
		if now.After(expiry) {
			delete(d.items, k)
		}
	}
}
