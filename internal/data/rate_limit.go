package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RateLimitRepo implements biz.RateLimitRepo on a Redis sorted set per
// client. Scores are request timestamps in unix nanoseconds; pruning by
// score range keeps the window self-cleaning and the key's own TTL reaps
// idle clients without a sweep process.
type RateLimitRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(rdb *redis.Client, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// PruneWindow removes request timestamps older than the cutoff.
func (r *RateLimitRepo) PruneWindow(ctx context.Context, clientID string, cutoff time.Time) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := rateWindowKey(clientID)

	removed, err := r.rdb.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10)).Result()
	if err != nil {
		return fmt.Errorf("failed to prune rate window: %w", err)
	}

	if removed > 0 {
		r.logger.Debugw("pruned expired request timestamps",
			"client_id", clientID,
			"removed", removed)
	}

	return nil
}

// RecordRequest adds a request timestamp to the client's window.
// The member must be unique per request; the caller supplies a request ID.
func (r *RateLimitRepo) RecordRequest(ctx context.Context, clientID string, at time.Time, requestID string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := rateWindowKey(clientID)

	if err := r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.UnixNano()),
		Member: requestID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}

	return nil
}

// CountRequests returns the number of requests currently in the window.
func (r *RateLimitRepo) CountRequests(ctx context.Context, clientID string) (int64, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := rateWindowKey(clientID)

	count, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}

	return count, nil
}

// RefreshExpiry extends the window key's TTL so an idle client's state
// expires after one full window.
func (r *RateLimitRepo) RefreshExpiry(ctx context.Context, clientID string, window time.Duration) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := rateWindowKey(clientID)

	if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
		return fmt.Errorf("failed to refresh window expiry: %w", err)
	}

	return nil
}

// rateWindowKey generates the Redis key for a client's sliding window.
// Format: rate:{client_id}
func rateWindowKey(clientID string) string {
	return BuildCacheKey(KeyRate, clientID)
}
