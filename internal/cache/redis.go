// Package cache stores classification results keyed by input text, backed by
// Redis when configured or an in-process TTL cache otherwise.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a string key/value store with per-entry expiry.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Key derives the cache key for a text under a given model identity, so a
// model swap never serves stale predictions.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "intent:" + hex.EncodeToString(sum[:])
}

// Redis wraps a Redis client for result storage
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis store connected to the specified address
// If addr is empty, defaults to localhost:6379
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,  // Default DB
	})

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Redis{client: client}, nil
}

// Set stores value under key with the specified TTL
func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get retrieves the value stored under key
func (c *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if c.client == nil {
		return "", false, fmt.Errorf("cache client is nil")
	}

	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil // Key does not exist
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return data, true, nil
}

// Close closes the Redis connection
func (c *Redis) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ Store = (*Redis)(nil)
