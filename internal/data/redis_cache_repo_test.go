package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/testutil"
)

func newMiniRedisRepo(t *testing.T) (*RedisCacheRepo, *miniredis.Miniredis) {
	t.Helper()
	client, mr := testutil.SetupMiniRedis(t)
	return NewRedisCacheRepo(client, "judge:"), mr
}

func TestRedisCacheRepo_SetGetDelete(t *testing.T) {
	repo, mr := newMiniRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "room:status:1", []byte("view"), time.Minute))
	assert.True(t, mr.Exists("judge:room:status:1"))
	assert.Equal(t, time.Minute, mr.TTL("judge:room:status:1"))

	got, err := repo.Get(ctx, "room:status:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("view"), got)

	deleted, err := repo.Delete(ctx, "room:status:1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "room:status:1")
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err = repo.Get(ctx, "room:status:1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRepo_Expiry(t *testing.T) {
	repo, mr := newMiniRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRepo_SetIfNotExists(t *testing.T) {
	repo, mr := newMiniRedisRepo(t)
	ctx := context.Background()

	ok, err := repo.SetIfNotExists(ctx, "lock", []byte("a"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Second, mr.TTL("judge:lock"))

	ok, err = repo.SetIfNotExists(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	repo, _ := newMiniRedisRepo(t)
	ctx := context.Background()

	assert.Error(t, repo.Set(ctx, "", nil, 0))
	_, err := repo.Get(ctx, "")
	assert.Error(t, err)
	_, err = repo.Delete(ctx, "")
	assert.Error(t, err)
	_, err = repo.SetIfNotExists(ctx, "", nil, 0)
	assert.Error(t, err)
}

func TestRedisCacheRepo_Health(t *testing.T) {
	repo, mr := newMiniRedisRepo(t)
	require.NoError(t, repo.Health(context.Background()))

	mr.Close()
	assert.Error(t, repo.Health(context.Background()))
}
