package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is an in-process LRU cache with per-entry TTLs. Expired
// entries are dropped lazily on read; the LRU bounds total size.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) (*MemoryCache, error) {
	if maxSize <= 0 {
		maxSize = 1000
	}
	entries, err := lru.New[string, memoryEntry](maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries}, nil
}

// Get retrieves a value, returning ErrNotFound on a miss or expiry.
func (c *MemoryCache) Get(ctx context.Context, key string) (any, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores a value with a TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.entries.Add(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been evicted.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
