package cache

import (
	"context"
	"errors"
	"time"
)

// l1MaxTTL caps how long the in-process tier holds an entry so that the
// shared tier stays authoritative.
const l1MaxTTL = 1 * time.Minute

// LayeredCache reads through an in-process L1 into a shared L2. Either
// tier may be nil.
type LayeredCache struct {
	l1 Cache
	l2 Cache
}

// NewLayeredCache creates a layered cache over the given tiers.
func NewLayeredCache(l1, l2 Cache) *LayeredCache {
	return &LayeredCache{l1: l1, l2: l2}
}

// Get checks L1, then L2. An L2 hit backfills L1.
func (lc *LayeredCache) Get(ctx context.Context, key string) (any, error) {
	if lc.l1 != nil {
		if value, err := lc.l1.Get(ctx, key); err == nil {
			return value, nil
		}
	}

	if lc.l2 != nil {
		value, err := lc.l2.Get(ctx, key)
		if err == nil {
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, value, l1MaxTTL)
			}
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// Set writes through to both tiers. It fails only if every tier fails.
func (lc *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1TTL := ttl
		if l1TTL > l1MaxTTL {
			l1TTL = l1MaxTTL
		}
		l1Err = lc.l1.Set(ctx, key, value, l1TTL)
	}
	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	if l1Err != nil && l2Err != nil {
		return l2Err
	}
	return nil
}

// Delete removes the key from both tiers.
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, tier := range []Cache{lc.l1, lc.l2} {
		if tier == nil {
			continue
		}
		if err := tier.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes both tiers.
func (lc *LayeredCache) Close() error {
	var firstErr error
	for _, tier := range []Cache{lc.l1, lc.l2} {
		if tier == nil {
			continue
		}
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
