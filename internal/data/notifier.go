package data

import (
	"context"

	"RelayGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogNotifier reports circuit breaker transitions to the log only.
// An HTTP webhook notifier can replace it behind the same biz.Notifier
// interface once an alerting endpoint exists.
type LogNotifier struct {
	logger *log.Helper
}

// NewLogNotifier creates a new log-based notifier.
func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitOpened logs a circuit-opened event.
func (n *LogNotifier) NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error {
	n.logger.Warnw("circuit opened",
		"dependency", event.Dependency,
		"failure_count", event.FailureCount,
		"opened_at", event.OpenedAt)
	return nil
}

// NotifyCircuitRecovered logs a circuit-recovered event.
func (n *LogNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	n.logger.Infow("circuit recovered",
		"dependency", event.Dependency,
		"recovered_at", event.RecoveredAt)
	return nil
}
