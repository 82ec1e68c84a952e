package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RelayGuard/internal/data"
	pkgerrors "RelayGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AdmissionOutcome is the idempotency guard's verdict for one delivery.
type AdmissionOutcome string

// Admission outcomes.
const (
	// AdmitNew: first sighting, the caller owns processing and must complete
	// the record via Complete.
	AdmitNew AdmissionOutcome = "NEW"
	// AdmitDuplicateProcessed: already processed, the original result is
	// returned and business logic must not re-run.
	AdmitDuplicateProcessed AdmissionOutcome = "DUPLICATE_PROCESSED"
	// AdmitDuplicatePending: the original attempt is still in flight.
	AdmitDuplicatePending AdmissionOutcome = "DUPLICATE_PENDING"
	// AdmitRetry: a previous attempt failed; the caller re-executes with the
	// same record, whose retry counter has been incremented.
	AdmitRetry AdmissionOutcome = "RETRY"
)

// Admission carries the outcome plus the record handle the caller needs to
// complete processing (NEW and RETRY) or the original result
// (DUPLICATE_PROCESSED).
type Admission struct {
	Outcome AdmissionOutcome
	Record  *data.EventRecord
	Result  string
}

// EventHandler executes the business logic for one event type and returns a
// JSON result string persisted as the record's completion data.
type EventHandler func(ctx context.Context, record *data.EventRecord) (string, error)

const (
	// processedCacheSize bounds the in-process cache of completed results.
	processedCacheSize = 4096
	// processedCacheTTL keeps hot duplicates answering without a DB round
	// trip; processed records are immutable so staleness is not a concern,
	// the TTL only bounds memory.
	processedCacheTTL = 10 * time.Minute
)

// IdempotencyUsecase deduplicates externally delivered events. Correctness
// under concurrent duplicate delivery rests on the durable store's unique
// constraint on event_id, not on any read-then-write sequence here.
type IdempotencyUsecase struct {
	repo EventRepo

	mu             sync.RWMutex
	handlers       map[string]EventHandler
	defaultHandler EventHandler

	processedCache *expirable.LRU[string, string]
	logger         *log.Helper
}

// NewIdempotencyUsecase creates a new idempotency guard.
func NewIdempotencyUsecase(repo EventRepo, logger log.Logger) *IdempotencyUsecase {
	uc := &IdempotencyUsecase{
		repo:           repo,
		handlers:       make(map[string]EventHandler),
		processedCache: expirable.NewLRU[string, string](processedCacheSize, nil, processedCacheTTL),
		logger:         log.NewHelper(logger),
	}
	uc.defaultHandler = uc.unhandledEventType
	return uc
}

// RegisterHandler registers the handler for an event type. Unregistered
// types fall through to a default handler that acknowledges the event
// without failing the idempotency transition.
func (uc *IdempotencyUsecase) RegisterHandler(eventType string, handler EventHandler) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.handlers[eventType] = handler
}

// Admit applies the idempotency state machine to one delivery.
//
//	no record     → insert pending, NEW (duplicate-key race → DUPLICATE_PROCESSED)
//	processed     → DUPLICATE_PROCESSED with original result
//	failed        → reclaim row, RETRY (reclaim race → DUPLICATE_PENDING)
//	pending       → DUPLICATE_PENDING
func (uc *IdempotencyUsecase) Admit(ctx context.Context, eventID, eventType, payload string) (*Admission, error) {
	// Hot path: completed results are immutable, serve duplicates from the
	// in-process cache without touching the durable store.
	if result, ok := uc.processedCache.Get(eventID); ok {
		return &Admission{Outcome: AdmitDuplicateProcessed, Result: result}, nil
	}

	record, err := uc.repo.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	if record == nil {
		fresh := &data.EventRecord{
			EventID:   eventID,
			EventType: eventType,
			Payload:   payload,
		}
		if err := uc.repo.InsertPending(ctx, fresh); err != nil {
			if pkgerrors.IsDuplicateKeyError(err) {
				// A concurrent admitter won the insert race and owns the
				// in-flight processing. Report success without reprocessing
				// rather than blocking the idempotent caller.
				uc.logger.Infow("lost admission race to concurrent duplicate",
					"event_id", eventID)
				return &Admission{Outcome: AdmitDuplicateProcessed}, nil
			}
			return nil, fmt.Errorf("idempotency insert failed: %w", err)
		}
		return &Admission{Outcome: AdmitNew, Record: fresh}, nil
	}

	switch record.Status {
	case data.EventStatusProcessed:
		result := ""
		if record.Result != nil {
			result = *record.Result
		}
		uc.processedCache.Add(eventID, result)
		return &Admission{Outcome: AdmitDuplicateProcessed, Record: record, Result: result}, nil

	case data.EventStatusFailed:
		claimed, err := uc.repo.ReclaimForRetry(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("retry reclaim failed: %w", err)
		}
		if !claimed {
			// Another delivery reclaimed the row first; for this caller the
			// event is simply in flight again.
			return &Admission{Outcome: AdmitDuplicatePending, Record: record}, nil
		}
		record.Status = data.EventStatusPending
		record.RetryCount++
		return &Admission{Outcome: AdmitRetry, Record: record}, nil

	default: // pending
		return &Admission{Outcome: AdmitDuplicatePending, Record: record}, nil
	}
}

// Process runs the registered handler for an admitted record and fulfils
// the completion contract: every exit transitions the record to processed or
// failed, never leaving it pending.
func (uc *IdempotencyUsecase) Process(ctx context.Context, record *data.EventRecord) (string, error) {
	handler := uc.handlerFor(record.EventType)

	result, err := handler(ctx, record)
	if err != nil {
		uc.logger.Errorw("event processing failed",
			"event_id", record.EventID,
			"event_type", record.EventType,
			"retry_count", record.RetryCount,
			"error", err)
		if markErr := uc.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			// The record stays pending and blocks this event identifier: an
			// availability bug that must be visible in the logs.
			uc.logger.Errorw("failed to mark event failed, record left pending",
				"event_id", record.EventID,
				"error", markErr)
		}
		return "", ErrProcessingFailed(record.EventID, err)
	}

	if err := uc.repo.MarkProcessed(ctx, record.ID, result); err != nil {
		uc.logger.Errorw("failed to mark event processed, record left pending",
			"event_id", record.EventID,
			"error", err)
		return "", fmt.Errorf("completion transition failed: %w", err)
	}

	uc.processedCache.Add(record.EventID, result)
	return result, nil
}

// ListEvents returns a page of event records filtered by status.
func (uc *IdempotencyUsecase) ListEvents(ctx context.Context, status data.EventStatus, page, pageSize int32) ([]*data.EventRecord, int64, error) {
	return uc.repo.ListByStatus(ctx, status, page, pageSize)
}

func (uc *IdempotencyUsecase) handlerFor(eventType string) EventHandler {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if h, ok := uc.handlers[eventType]; ok {
		return h
	}
	return uc.defaultHandler
}

// unhandledEventType acknowledges events with no registered handler. It
// succeeds so the idempotency transition completes; dropping the event would
// wedge its identifier in pending forever.
func (uc *IdempotencyUsecase) unhandledEventType(ctx context.Context, record *data.EventRecord) (string, error) {
	uc.logger.Warnw("no handler registered for event type, acknowledging",
		"event_id", record.EventID,
		"event_type", record.EventType)
	return fmt.Sprintf(`{"acknowledged":true,"handled":false,"event_type":%q}`, record.EventType), nil
}
