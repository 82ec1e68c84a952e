package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachePayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCacheClient_SetAndGet(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	err := cache.Set(ctx, "test:key", &cachePayload{Name: "a", Count: 2}, time.Minute)
	require.NoError(t, err)

	var got cachePayload
	err = cache.Get(ctx, "test:key", &got)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 2, got.Count)
}

func TestCacheClient_GetMissing(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)

	var got cachePayload
	err := cache.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheClient_Delete(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test:key", &cachePayload{}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "test:key"))

	exists, err := cache.Exists(ctx, "test:key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheClient_TTLExpiry(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test:key", &cachePayload{}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got cachePayload
	err := cache.Get(ctx, "test:key", &got)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheClient_NilClient(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var got cachePayload
	assert.Error(t, cache.Get(ctx, "k", &got))
	assert.Error(t, cache.Set(ctx, "k", &got, time.Minute))
	assert.Error(t, cache.Delete(ctx, "k"))
	_, err := cache.Exists(ctx, "k")
	assert.Error(t, err)
}

func TestBuildCacheKey(t *testing.T) {
	assert.Equal(t, "rate:client-1", BuildCacheKey(KeyRate, "client-1"))
	assert.Equal(t, "circuit:upstream:failures", BuildCacheKey(KeyCircuit, "upstream", "failures"))
	assert.Equal(t, "credential", BuildCacheKey(KeyCredential))
}
