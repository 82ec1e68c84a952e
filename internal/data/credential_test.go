package data

import (
	"context"
	"os"
	"testing"
	"time"

	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToken_Miss(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	entry, err := repo.GetToken(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSetToken_AndGet(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	err := repo.SetToken(ctx, &model.CredentialEntry{
		Token:     "tok-abc",
		ExpiresAt: expiresAt,
	}, time.Hour)
	require.NoError(t, err)

	entry, err := repo.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "tok-abc", entry.Token)
	assert.True(t, entry.ExpiresAt.Equal(expiresAt))
	assert.False(t, entry.Placeholder)
}

func TestSetToken_ExpiresWithTTL(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	ctx := context.Background()

	err := repo.SetToken(ctx, &model.CredentialEntry{
		Token:     "tok-abc",
		ExpiresAt: time.Now().Add(time.Minute),
	}, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	entry, err := repo.GetToken(ctx)
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestAcquireLease_OnlyOneHolder(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	ctx := context.Background()

	won, err := repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, won)

	lost, err := repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, lost)

	held, err := repo.LeaseHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestReleaseLease_FreesTheSlot(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	ctx := context.Background()

	won, err := repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, repo.ReleaseLease(ctx))

	held, err := repo.LeaseHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	won, err = repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestAcquireLease_TTLExpiryUnblocks(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewCredentialRepo(rdb, NewCacheClient(rdb), logger)

	ctx := context.Background()

	won, err := repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	// A crashed holder never releases; the TTL must free the slot.
	mr.FastForward(11 * time.Second)

	won, err = repo.AcquireLease(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, won)
}
