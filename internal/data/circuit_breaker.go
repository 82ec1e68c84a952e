package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// CircuitBreakerRepo implements biz.CircuitRepo on Redis, keyed per
// protected dependency. The failure counter's TTL is the monitoring window:
// the store's own expiry is the decay mechanism, no cleanup task runs.
type CircuitBreakerRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewCircuitBreakerRepo creates a new circuit breaker repository.
func NewCircuitBreakerRepo(rdb *redis.Client, logger log.Logger) *CircuitBreakerRepo {
	return &CircuitBreakerRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// RecordFailure increments the failure counter and stamps the last-failure
// time. The counter's TTL is set on first increment only, so the window
// rolls from the first failure in it.
func (r *CircuitBreakerRepo) RecordFailure(ctx context.Context, dependency string, window time.Duration, at time.Time) (int64, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	failureKey := circuitKey(dependency, "failures")

	count, err := r.rdb.Incr(ctx, failureKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment failure count: %w", err)
	}

	if count == 1 {
		if err := r.rdb.Expire(ctx, failureKey, window).Err(); err != nil {
			r.logger.Warnw("failed to set failure counter TTL",
				"dependency", dependency,
				"error", err)
		}
	}

	// The last-failure stamp must outlive the counter: the reset-timeout
	// comparison still needs it after the monitoring window has decayed.
	lastKey := circuitKey(dependency, "last_failure")
	if err := r.rdb.Set(ctx, lastKey, at.Unix(), window+time.Hour).Err(); err != nil {
		r.logger.Warnw("failed to record last failure time",
			"dependency", dependency,
			"error", err)
	}

	return count, nil
}

// FailureCount returns the current failure count, 0 if the counter has
// expired or never existed.
func (r *CircuitBreakerRepo) FailureCount(ctx context.Context, dependency string) (int64, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	count, err := r.rdb.Get(ctx, circuitKey(dependency, "failures")).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get failure count: %w", err)
	}

	return count, nil
}

// LastFailureAt returns the recorded last-failure time, nil if none.
func (r *CircuitBreakerRepo) LastFailureAt(ctx context.Context, dependency string) (*time.Time, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	timestamp, err := r.rdb.Get(ctx, circuitKey(dependency, "last_failure")).Int64()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last failure time: %w", err)
	}

	t := time.Unix(timestamp, 0)
	return &t, nil
}

// TryAcquireProbe atomically claims the half-open trial slot via SETNX.
// The marker's TTL equals the reset timeout, so a crashed prober does not
// wedge the breaker.
func (r *CircuitBreakerRepo) TryAcquireProbe(ctx context.Context, dependency string, ttl time.Duration) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	acquired, err := r.rdb.SetNX(ctx, circuitKey(dependency, "probe"), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire probe marker: %w", err)
	}

	if acquired {
		r.logger.Debugw("half-open probe marker acquired",
			"dependency", dependency,
			"ttl", ttl)
	}

	return acquired, nil
}

// Reset clears all breaker state for the dependency (marks it healthy).
func (r *CircuitBreakerRepo) Reset(ctx context.Context, dependency string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	keys := []string{
		circuitKey(dependency, "failures"),
		circuitKey(dependency, "last_failure"),
		circuitKey(dependency, "probe"),
	}

	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset circuit state: %w", err)
	}

	r.logger.Infow("circuit state reset", "dependency", dependency)
	return nil
}

// circuitKey generates a Redis key for circuit breaker state.
// Format: circuit:{dependency}:{part}
func circuitKey(dependency, part string) string {
	return BuildCacheKey(KeyCircuit, dependency, part)
}
