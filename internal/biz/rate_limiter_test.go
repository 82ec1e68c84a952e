package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"RelayGuard/internal/conf"
	"RelayGuard/internal/data"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// testBootstrap returns a Bootstrap with the guard defaults used across the
// biz tests.
func testBootstrap() *conf.Bootstrap {
	return &conf.Bootstrap{
		Guard: &conf.Guard{
			RateLimit: &conf.Guard_RateLimit{
				MaxRequests: 100,
				Window:      durationpb.New(15 * time.Minute),
				FailOpen:    true,
			},
			Circuit: &conf.Guard_Circuit{
				FailureThreshold: 5,
				MonitoringWindow: durationpb.New(time.Minute),
				ResetTimeout:     durationpb.New(30 * time.Second),
			},
			Credential: &conf.Guard_Credential{
				Timeout:      durationpb.New(5 * time.Second),
				ExpiryMargin: durationpb.New(time.Minute),
				LeaseTtl:     durationpb.New(10 * time.Second),
				LeaseWaitMax: durationpb.New(time.Second),
			},
			Upstream: &conf.Guard_Upstream{
				Timeout:    durationpb.New(10 * time.Second),
				MaxRetries: 3,
			},
		},
	}
}

func setupLimiter(t *testing.T, bc *conf.Bootstrap) (*RateLimiterUseCase, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := log.NewStdLogger(os.Stdout)
	repo := data.NewRateLimitRepo(rdb, logger)
	return NewRateLimiterUseCase(repo, bc, logger), mr
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	uc, _ := setupLimiter(t, testBootstrap())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		decision, err := uc.Admit(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, int64(100-i-1), decision.Remaining)
		assert.False(t, decision.ResetAt.IsZero())
	}
}

func TestRateLimiter_RejectsBeyondLimit(t *testing.T) {
	uc, _ := setupLimiter(t, testBootstrap())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		decision, err := uc.Admit(ctx, "client-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := uc.Admit(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(101), decision.Current)
	assert.Equal(t, int64(0), decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestRateLimiter_RejectedRequestStillOccupiesWindow(t *testing.T) {
	bc := testBootstrap()
	bc.Guard.RateLimit.MaxRequests = 2
	bc.Guard.RateLimit.Window = durationpb.New(time.Minute)
	uc, _ := setupLimiter(t, bc)
	ctx := context.Background()

	d1, err := uc.Admit(ctx, "client-1")
	require.NoError(t, err)
	require.True(t, d1.Allowed)
	d2, err := uc.Admit(ctx, "client-1")
	require.NoError(t, err)
	require.True(t, d2.Allowed)
	d3, err := uc.Admit(ctx, "client-1")
	require.NoError(t, err)
	require.False(t, d3.Allowed)

	current, limit, err := uc.Usage(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)
	assert.Equal(t, int64(2), limit)
}

func TestRateLimiter_IsolatedPerClient(t *testing.T) {
	bc := testBootstrap()
	bc.Guard.RateLimit.MaxRequests = 1
	uc, _ := setupLimiter(t, bc)
	ctx := context.Background()

	d1, err := uc.Admit(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, d1.Allowed)
	d2, err := uc.Admit(ctx, "client-a")
	require.NoError(t, err)
	require.False(t, d2.Allowed)

	d3, err := uc.Admit(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, d3.Allowed)
}

func TestRateLimiter_FailOpenAdmitsOnStoreError(t *testing.T) {
	bc := testBootstrap()
	logger := log.NewStdLogger(os.Stdout)
	uc := NewRateLimiterUseCase(&failingRateRepo{}, bc, logger)

	decision, err := uc.Admit(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Degraded)
}

func TestRateLimiter_FailClosedRejectsOnStoreError(t *testing.T) {
	bc := testBootstrap()
	bc.Guard.RateLimit.FailOpen = false
	logger := log.NewStdLogger(os.Stdout)
	uc := NewRateLimiterUseCase(&failingRateRepo{}, bc, logger)

	_, err := uc.Admit(context.Background(), "client-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonStoreUnavailable)
}

// failingRateRepo simulates an unreachable store.
type failingRateRepo struct{}

func (f *failingRateRepo) PruneWindow(ctx context.Context, clientID string, cutoff time.Time) error {
	return errors.New("connection refused")
}

func (f *failingRateRepo) RecordRequest(ctx context.Context, clientID string, at time.Time, requestID string) error {
	return errors.New("connection refused")
}

func (f *failingRateRepo) CountRequests(ctx context.Context, clientID string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (f *failingRateRepo) RefreshExpiry(ctx context.Context, clientID string, window time.Duration) error {
	return errors.New("connection refused")
}
