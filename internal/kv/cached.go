package kv

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/livetemplate/pagecraft/internal/cache"
)

// CachedStore serves reads from a TTL cache and invalidates on every write.
// Each key carries a write generation, so a read that raced a write never
// fills the cache with the value it replaced.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration

	mu  sync.Mutex
	gen map[string]uint64
}

// WithCache wraps s. A non-positive ttl defaults to 30 seconds.
func WithCache(s Store, c cache.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{Store: s, cache: c, ttl: ttl, gen: make(map[string]uint64)}
}

// Get returns a copy the caller owns.
func (c *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if entry, ok := c.cache.Get(key); ok {
		if entry.Missing {
			return nil, ErrNotFound
		}
		return bytes.Clone(entry.Value), nil
	}

	c.mu.Lock()
	gen := c.gen[key]
	c.mu.Unlock()

	value, err := c.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c.mu.Lock()
	if c.gen[key] == gen {
		if err != nil {
			c.cache.SetMissing(key, c.ttl)
		} else {
			c.cache.Set(key, value, c.ttl)
		}
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(value), nil
}

func (c *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	err := c.Store.Set(ctx, key, value)
	c.invalidate(key)
	return err
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	err := c.Store.Delete(ctx, key)
	c.invalidate(key)
	return err
}

// invalidate bumps the key's generation and drops its cache entry.
func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	c.gen[key]++
	c.cache.Invalidate(key)
	c.mu.Unlock()
}

func (c *CachedStore) Close() error {
	if stopper, ok := c.cache.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	return c.Store.Close()
}
