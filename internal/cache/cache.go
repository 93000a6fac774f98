// Package cache provides an in-memory TTL cache for key-value reads.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its expiry.
type Entry struct {
	Value     []byte
	Missing   bool // negative entry: the key is known to be absent
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache defines the read-through cache used in front of durable stores.
type Cache interface {
	// Get returns the entry for key, or false on a miss.
	Get(key string) (Entry, bool)
	// Set stores value for ttl.
	Set(key string, value []byte, ttl time.Duration)
	// SetMissing records that key does not exist, for ttl.
	SetMissing(key string, ttl time.Duration)
	// Invalidate removes one key.
	Invalidate(key string)
	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(prefix string)
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64
	Misses int64
}

// MemoryCache is a Cache with a background sweeper.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	stats   Stats
	now     func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewMemoryCache creates a cache that sweeps expired entries every interval.
// A non-positive interval defaults to one minute.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	if interval <= 0 {
		interval = time.Minute
	}
	c := &MemoryCache{
		entries:       make(map[string]*Entry),
		now:           time.Now,
		sweepInterval: interval,
		stop:          make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}
	if entry.IsExpired(c.now()) {
		delete(c.entries, key)
		c.stats.Misses++
		return Entry{}, false
	}
	c.stats.Hits++
	out := *entry
	out.Value = append([]byte(nil), entry.Value...)
	return out, true
}

// Set implements Cache.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.put(key, &Entry{Value: append([]byte(nil), value...), ExpiresAt: c.now().Add(ttl)})
}

// SetMissing implements Cache.
func (c *MemoryCache) SetMissing(key string, ttl time.Duration) {
	c.put(key, &Entry{Missing: true, ExpiresAt: c.now().Add(ttl)})
}

func (c *MemoryCache) put(key string, e *Entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix implements Cache.
func (c *MemoryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns lookup counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
