package biz

import (
	"context"
	"time"

	"RelayGuard/internal/data"
	"RelayGuard/internal/model"
)

// EventRepo defines the durable event record operations.
// Following Kratos v2 DDD architecture, interfaces are defined in the biz
// layer; the implementation is data.EventRepo.
type EventRepo interface {
	// InsertPending inserts a new pending record; a duplicate-key error
	// (pkg/errors.IsDuplicateKeyError) means a concurrent admitter won.
	InsertPending(ctx context.Context, record *data.EventRecord) error
	// GetByEventID returns (nil, nil) when no record exists.
	GetByEventID(ctx context.Context, eventID string) (*data.EventRecord, error)
	MarkProcessed(ctx context.Context, id int64, result string) error
	MarkFailed(ctx context.Context, id int64, procErr string) error
	// ReclaimForRetry returns false when another caller claimed the retry.
	ReclaimForRetry(ctx context.Context, id int64) (bool, error)
	ListByStatus(ctx context.Context, status data.EventStatus, page, pageSize int32) ([]*data.EventRecord, int64, error)
}

// RateLimitRepo defines the sliding-window store operations.
type RateLimitRepo interface {
	PruneWindow(ctx context.Context, clientID string, cutoff time.Time) error
	RecordRequest(ctx context.Context, clientID string, at time.Time, requestID string) error
	CountRequests(ctx context.Context, clientID string) (int64, error)
	RefreshExpiry(ctx context.Context, clientID string, window time.Duration) error
}

// CircuitRepo defines the circuit breaker store operations.
type CircuitRepo interface {
	RecordFailure(ctx context.Context, dependency string, window time.Duration, at time.Time) (int64, error)
	FailureCount(ctx context.Context, dependency string) (int64, error)
	LastFailureAt(ctx context.Context, dependency string) (*time.Time, error)
	TryAcquireProbe(ctx context.Context, dependency string, ttl time.Duration) (bool, error)
	Reset(ctx context.Context, dependency string) error
}

// CredentialRepo defines the credential cache and lease store operations.
type CredentialRepo interface {
	GetToken(ctx context.Context) (*model.CredentialEntry, error)
	SetToken(ctx context.Context, entry *model.CredentialEntry, ttl time.Duration) error
	AcquireLease(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context) error
	LeaseHeld(ctx context.Context) (bool, error)
}

// Notifier receives circuit breaker transition events.
type Notifier interface {
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error
}

// TokenIssuer is the external credential-issuing authority.
// Implementations must bound the call with their own timeout.
type TokenIssuer interface {
	Issue(ctx context.Context) (token string, validity time.Duration, placeholder bool, err error)
}
