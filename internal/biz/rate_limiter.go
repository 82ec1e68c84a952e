package biz

import (
	"context"
	"time"

	"RelayGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed    bool
	Current    int64
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	// Degraded is set when the store was unreachable and the fail-open
	// policy admitted the request without counting it.
	Degraded bool
}

// RateLimiterUseCase enforces a per-client sliding window over the shared
// store, so the limit holds across all instances. The prune, record and
// count steps are not atomic; under concurrency the window may briefly admit
// slightly more than the limit, which is acceptable for traffic shaping.
type RateLimiterUseCase struct {
	repo        RateLimitRepo
	maxRequests int64
	window      time.Duration
	failOpen    bool
	logger      *log.Helper
}

// NewRateLimiterUseCase creates a sliding-window rate limiter.
func NewRateLimiterUseCase(repo RateLimitRepo, c *conf.Bootstrap, logger log.Logger) *RateLimiterUseCase {
	guard := c.Guard.RateLimit
	return &RateLimiterUseCase{
		repo:        repo,
		maxRequests: int64(guard.MaxRequests),
		window:      guard.Window.AsDuration(),
		failOpen:    guard.FailOpen,
		logger:      log.NewHelper(logger),
	}
}

// Admit records the request and decides whether it fits in the client's
// window. On store failure the configured policy applies: fail open admits
// without counting, fail closed rejects with a store error.
func (uc *RateLimiterUseCase) Admit(ctx context.Context, clientID string) (*RateLimitDecision, error) {
	now := time.Now()

	if err := uc.repo.PruneWindow(ctx, clientID, now.Add(-uc.window)); err != nil {
		return uc.storeFailure(ctx, clientID, "prune", err)
	}
	if err := uc.repo.RecordRequest(ctx, clientID, now, uuid.NewString()); err != nil {
		return uc.storeFailure(ctx, clientID, "record", err)
	}
	count, err := uc.repo.CountRequests(ctx, clientID)
	if err != nil {
		return uc.storeFailure(ctx, clientID, "count", err)
	}
	// Keep the window key from outliving an idle client.
	if err := uc.repo.RefreshExpiry(ctx, clientID, uc.window+time.Minute); err != nil {
		uc.logger.Warnw("rate window expiry refresh failed", "client_id", clientID, "error", err)
	}

	decision := &RateLimitDecision{
		Allowed: count <= uc.maxRequests,
		Current: count,
		Limit:   uc.maxRequests,
		ResetAt: now.Add(uc.window),
	}
	if remaining := uc.maxRequests - count; remaining > 0 {
		decision.Remaining = remaining
	}
	if !decision.Allowed {
		// Without reading the oldest window entry the honest retry hint is
		// a full window.
		decision.RetryAfter = uc.window
		uc.logger.Infow("rate limit exceeded",
			"client_id", clientID,
			"current", count,
			"limit", uc.maxRequests,
			"retry_after", decision.RetryAfter)
	}
	return decision, nil
}

// Usage reports the client's current window occupancy without admitting.
func (uc *RateLimiterUseCase) Usage(ctx context.Context, clientID string) (int64, int64, error) {
	if err := uc.repo.PruneWindow(ctx, clientID, time.Now().Add(-uc.window)); err != nil {
		return 0, uc.maxRequests, err
	}
	count, err := uc.repo.CountRequests(ctx, clientID)
	if err != nil {
		return 0, uc.maxRequests, err
	}
	return count, uc.maxRequests, nil
}

func (uc *RateLimiterUseCase) storeFailure(ctx context.Context, clientID, step string, err error) (*RateLimitDecision, error) {
	if uc.failOpen {
		uc.logger.Warnw("rate limit store unavailable, admitting without count",
			"client_id", clientID,
			"step", step,
			"error", err)
		return &RateLimitDecision{Allowed: true, Limit: uc.maxRequests, Remaining: uc.maxRequests, Degraded: true}, nil
	}
	return nil, ErrStoreUnavailable(err)
}
