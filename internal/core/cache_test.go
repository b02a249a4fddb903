package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
)

type mapCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	return m.data[key], m.getErr
}

func (m *mapCache) Delete(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *mapCache) SetIfNotExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *mapCache) Health(context.Context) error { return nil }

func TestRoomStatusCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := newMapCache()
	c := NewRoomStatusCache(backing, 0)

	miss, err := c.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	view := &model.RoomStatusView{
		Room:       &model.Room{ID: "room-1", Status: model.RoomStatusAIProcessing},
		Stalled:    true,
		RetryCount: 3,
	}
	require.NoError(t, c.Put(ctx, view))
	assert.Equal(t, DefaultRoomStatusTTL, backing.ttls["room:status:room-1"])

	got, err := c.Get(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Stalled)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, model.RoomStatusAIProcessing, got.Room.Status)

	require.NoError(t, c.Invalidate(ctx, "room-1"))
	got, err = c.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRoomStatusCache_NilIsNoop(t *testing.T) {
	ctx := context.Background()
	var c *RoomStatusCache
	assert.Nil(t, NewRoomStatusCache(nil, time.Second))

	v, err := c.Get(ctx, "room")
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, c.Put(ctx, &model.RoomStatusView{Room: &model.Room{ID: "room"}}))
	assert.NoError(t, c.Invalidate(ctx, "room"))
}

func TestRoomStatusCache_Errors(t *testing.T) {
	ctx := context.Background()
	backing := newMapCache()
	c := NewRoomStatusCache(backing, time.Minute)

	backing.getErr = errors.New("redis down")
	_, err := c.Get(ctx, "room")
	assert.Error(t, err)

	backing.getErr = nil
	backing.data["room:status:bad"] = []byte("{not json")
	_, err = c.Get(ctx, "bad")
	assert.ErrorContains(t, err, "decode cached room status")
}
