// Package core defines the ports between the judge services and their adapters.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// DefaultRoomStatusTTL bounds how stale a cached room status view may be.
const DefaultRoomStatusTTL = 30 * time.Second

// RoomStatusCache stores serialized room status views. A nil *RoomStatusCache is a
// valid no-op cache.
type RoomStatusCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// NewRoomStatusCache wraps a cache repository. It returns nil when cache is nil.
func NewRoomStatusCache(cache CacheRepository, ttl time.Duration) *RoomStatusCache {
	if cache == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultRoomStatusTTL
	}
	return &RoomStatusCache{cache: cache, ttl: ttl}
}

// Get returns the cached view or nil on a miss.
func (c *RoomStatusCache) Get(ctx context.Context, roomID string) (*model.RoomStatusView, error) {
	if c == nil || roomID == "" {
		return nil, nil
	}
	raw, err := c.cache.Get(ctx, roomStatusKey(roomID))
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var v model.RoomStatusView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached room status: %w", err)
	}
	return &v, nil
}

// Put caches a view.
func (c *RoomStatusCache) Put(ctx context.Context, v *model.RoomStatusView) error {
	if c == nil || v == nil || v.Room == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode room status: %w", err)
	}
	return c.cache.Set(ctx, roomStatusKey(v.Room.ID), raw, c.ttl)
}

// Invalidate drops the cached view of a room.
func (c *RoomStatusCache) Invalidate(ctx context.Context, roomID string) error {
	if c == nil || roomID == "" {
		return nil
	}
	_, err := c.cache.Delete(ctx, roomStatusKey(roomID))
	return err
}

func roomStatusKey(roomID string) string {
	return "room:status:" + roomID
}
