package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory is an in-process Store with TTL-based expiration.
type Memory struct {
	cache *ttlcache.Cache[string, string]
}

// NewMemory creates a Memory store. Entries set with a zero TTL use
// defaultTTL; capacity 0 means unbounded.
func NewMemory(defaultTTL time.Duration, capacity uint64) *Memory {
	opts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, string](capacity))
	}
	c := ttlcache.New[string, string](opts...)
	go c.Start()
	return &Memory{cache: c}
}

// Get returns the cached value, or false if missing or expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return "", false, nil
	}
	return item.Value(), true, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.cache.Set(key, value, ttl)
	return nil
}

// Close stops the expiration loop.
func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.cache.Len()
}

var _ Store = (*Memory)(nil)
