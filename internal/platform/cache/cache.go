// Package cache provides TTL caches behind a single interface, with
// in-memory, Redis, and layered implementations.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the common interface for all cache tiers.
type Cache interface {
	// Get retrieves a value, returning ErrNotFound on a miss.
	Get(ctx context.Context, key string) (any, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
