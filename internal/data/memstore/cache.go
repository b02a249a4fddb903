package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/private-judge/judge-api/internal/core"
)

// errEmptyKey mirrors the Redis adapter's rejection of empty keys.
var errEmptyKey = errors.New("key cannot be empty")

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-memory core.CacheRepository with TTL expiry against the store clock.
type Cache struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates an empty cache. A nil clock uses the system clock.
func NewCache(clock Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache{clock: clock, entries: make(map[string]cacheEntry)}
}

// Cache returns a cache sharing the store clock.
func (s *Store) Cache() *Cache { return NewCache(s.clock) }

func (c *Cache) liveLocked(key string) (cacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(ttl)
}

// Set stores value under key. A zero TTL never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return nil
}

// Get returns the value or nil on a miss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveLocked(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.liveLocked(key)
	delete(c.entries, key)
	return ok, nil
}

// SetIfNotExists stores value only when key is absent or expired.
func (c *Cache) SetIfNotExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.liveLocked(key); ok {
		return false, nil
	}
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return true, nil
}

// Health always succeeds.
func (c *Cache) Health(context.Context) error { return nil }

var _ core.CacheRepository = (*Cache)(nil)
