package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// CredentialRepo implements biz.CredentialRepo. The cached token lives in
// Redis as a JSON entry; the refresh lease is a separate key written with
// SETNX so acquisition is atomic. The lease is advisory: its short TTL, not
// the holder, is the ultimate release guarantee.
type CredentialRepo struct {
	rdb    *redis.Client
	cache  CacheClient
	logger *log.Helper
}

// NewCredentialRepo creates a new credential repository.
func NewCredentialRepo(rdb *redis.Client, cache CacheClient, logger log.Logger) *CredentialRepo {
	return &CredentialRepo{
		rdb:    rdb,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// GetToken reads the cached credential entry. Returns (nil, nil) when no
// entry exists (cache miss or expired).
func (r *CredentialRepo) GetToken(ctx context.Context) (*model.CredentialEntry, error) {
	var entry model.CredentialEntry
	err := r.cache.Get(ctx, credentialTokenKey(), &entry)
	if err != nil {
		if errors.Is(err, ErrCacheNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached credential: %w", err)
	}

	return &entry, nil
}

// SetToken stores the credential entry with the given TTL. The entry's
// ExpiresAt is already margin-adjusted by the caller; the key TTL matches it
// so the store reaps stale tokens on its own.
func (r *CredentialRepo) SetToken(ctx context.Context, entry *model.CredentialEntry, ttl time.Duration) error {
	if err := r.cache.Set(ctx, credentialTokenKey(), entry, ttl); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	r.logger.Debugw("credential stored",
		"expires_at", entry.ExpiresAt,
		"placeholder", entry.Placeholder)

	return nil
}

// AcquireLease attempts to claim the refresh lease via SETNX.
func (r *CredentialRepo) AcquireLease(ctx context.Context, ttl time.Duration) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	acquired, err := r.rdb.SetNX(ctx, credentialLeaseKey(), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire refresh lease: %w", err)
	}

	return acquired, nil
}

// ReleaseLease drops the refresh lease. Called on every exit path of the
// holder, success or failure.
func (r *CredentialRepo) ReleaseLease(ctx context.Context) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.rdb.Del(ctx, credentialLeaseKey()).Err(); err != nil {
		return fmt.Errorf("failed to release refresh lease: %w", err)
	}

	return nil
}

// LeaseHeld reports whether another actor currently holds the lease.
func (r *CredentialRepo) LeaseHeld(ctx context.Context) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	exists, err := r.rdb.Exists(ctx, credentialLeaseKey()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check refresh lease: %w", err)
	}

	return exists > 0, nil
}

func credentialTokenKey() string {
	return BuildCacheKey(KeyCredential, "token")
}

func credentialLeaseKey() string {
	return BuildCacheKey(KeyLease, "credential")
}
