package biz

import (
	"context"
	"time"

	"RelayGuard/internal/conf"
	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerUsecase implements a three-state breaker whose failure
// counters live in the shared store, so every instance sees the same
// dependency health. State is derived on each call from the counters rather
// than stored, which keeps transitions race-free: OPEN is "threshold
// reached and reset timeout not yet elapsed", HALF_OPEN is the window after
// that where a single probe slot exists.
type CircuitBreakerUsecase struct {
	repo     CircuitRepo
	notifier Notifier

	failureThreshold int64
	monitoringWindow time.Duration
	resetTimeout     time.Duration

	logger *log.Helper
}

// NewCircuitBreakerUsecase creates a circuit breaker over the shared store.
func NewCircuitBreakerUsecase(repo CircuitRepo, notifier Notifier, c *conf.Bootstrap, logger log.Logger) *CircuitBreakerUsecase {
	guard := c.Guard.Circuit
	return &CircuitBreakerUsecase{
		repo:             repo,
		notifier:         notifier,
		failureThreshold: int64(guard.FailureThreshold),
		monitoringWindow: guard.MonitoringWindow.AsDuration(),
		resetTimeout:     guard.ResetTimeout.AsDuration(),
		logger:           log.NewHelper(logger),
	}
}

// Execute runs fn under the breaker for the named dependency.
//
// CLOSED: fn runs; failures are counted, a success clears the count, and
// crossing the threshold opens the circuit. OPEN: fail fast with
// ErrCircuitOpen. HALF_OPEN: exactly one
// caller wins the probe slot and runs fn; success resets the circuit,
// failure re-opens it. Losers of the probe race fail fast.
//
// Store errors fail closed: an unreadable breaker rejects rather than
// letting traffic through to a possibly broken dependency.
func (uc *CircuitBreakerUsecase) Execute(ctx context.Context, dependency string, fn func(ctx context.Context) error) error {
	state, count, err := uc.currentState(ctx, dependency)
	if err != nil {
		return ErrStoreUnavailable(err)
	}

	switch state {
	case model.CircuitOpen:
		uc.logger.Debugw("circuit open, failing fast", "dependency", dependency)
		return ErrCircuitOpen(dependency)

	case model.CircuitHalfOpen:
		// One probe per reset window. The marker TTL matches the reset
		// timeout so a crashed prober does not wedge the circuit half-open.
		won, err := uc.repo.TryAcquireProbe(ctx, dependency, uc.resetTimeout)
		if err != nil {
			return ErrStoreUnavailable(err)
		}
		if !won {
			return ErrCircuitOpen(dependency)
		}
		uc.logger.Infow("circuit half-open, probing dependency", "dependency", dependency)
		if err := fn(ctx); err != nil {
			uc.recordFailure(ctx, dependency, count)
			return err
		}
		uc.recover(ctx, dependency)
		return nil

	default: // closed
		if err := fn(ctx); err != nil {
			uc.recordFailure(ctx, dependency, count)
			return err
		}
		if count > 0 {
			if err := uc.repo.Reset(ctx, dependency); err != nil {
				uc.logger.Warnw("failed to clear circuit failures after success",
					"dependency", dependency, "error", err)
			}
		}
		return nil
	}
}

// Stats reports the breaker's view of one dependency.
func (uc *CircuitBreakerUsecase) Stats(ctx context.Context, dependency string) (*model.CircuitStats, error) {
	state, count, err := uc.currentState(ctx, dependency)
	if err != nil {
		return nil, ErrStoreUnavailable(err)
	}
	stats := &model.CircuitStats{
		Dependency:       dependency,
		State:            state,
		FailureCount:     count,
		FailureThreshold: int32(uc.failureThreshold),
		MonitoringWindow: uc.monitoringWindow,
		ResetTimeout:     uc.resetTimeout,
	}
	if last, err := uc.repo.LastFailureAt(ctx, dependency); err == nil && last != nil {
		stats.LastFailureAt = last
		if state != model.CircuitClosed {
			retryAt := last.Add(uc.resetTimeout)
			stats.RetryAt = &retryAt
		}
	}
	return stats, nil
}

func (uc *CircuitBreakerUsecase) currentState(ctx context.Context, dependency string) (model.CircuitBreakerState, int64, error) {
	count, err := uc.repo.FailureCount(ctx, dependency)
	if err != nil {
		return model.CircuitClosed, 0, err
	}
	if count < uc.failureThreshold {
		return model.CircuitClosed, count, nil
	}
	last, err := uc.repo.LastFailureAt(ctx, dependency)
	if err != nil {
		return model.CircuitClosed, count, err
	}
	if last == nil || time.Since(*last) >= uc.resetTimeout {
		return model.CircuitHalfOpen, count, nil
	}
	return model.CircuitOpen, count, nil
}

func (uc *CircuitBreakerUsecase) recordFailure(ctx context.Context, dependency string, prevCount int64) {
	count, err := uc.repo.RecordFailure(ctx, dependency, uc.monitoringWindow, time.Now())
	if err != nil {
		// Losing a failure sample only delays opening; not worth failing
		// the caller's already-failed request differently.
		uc.logger.Warnw("failed to record circuit failure", "dependency", dependency, "error", err)
		return
	}
	uc.logger.Infow("circuit failure recorded",
		"dependency", dependency,
		"failure_count", count,
		"threshold", uc.failureThreshold)
	if count >= uc.failureThreshold && prevCount < uc.failureThreshold {
		uc.logger.Warnw("circuit opened", "dependency", dependency, "failure_count", count)
		if err := uc.notifier.NotifyCircuitOpened(ctx, &model.CircuitOpenedEvent{
			Dependency:   dependency,
			FailureCount: count,
			OpenedAt:     time.Now(),
			RetryAt:      time.Now().Add(uc.resetTimeout),
		}); err != nil {
			uc.logger.Warnw("circuit opened notification failed", "dependency", dependency, "error", err)
		}
	}
}

func (uc *CircuitBreakerUsecase) recover(ctx context.Context, dependency string) {
	if err := uc.repo.Reset(ctx, dependency); err != nil {
		uc.logger.Warnw("circuit reset failed after successful probe",
			"dependency", dependency, "error", err)
		return
	}
	uc.logger.Infow("circuit recovered", "dependency", dependency)
	if err := uc.notifier.NotifyCircuitRecovered(ctx, &model.CircuitRecoveredEvent{
		Dependency:  dependency,
		RecoveredAt: time.Now(),
	}); err != nil {
		uc.logger.Warnw("circuit recovered notification failed", "dependency", dependency, "error", err)
	}
}
