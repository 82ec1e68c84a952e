package service

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"RelayGuard/internal/biz"
	"RelayGuard/internal/data"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEventRepo keeps records in memory and enforces event_id uniqueness.
type stubEventRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*data.EventRecord
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{nextID: 1, records: make(map[string]*data.EventRecord)}
}

func (s *stubEventRepo) InsertPending(ctx context.Context, record *data.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.EventID]; ok {
		return &mysql.MySQLError{Number: 1062}
	}
	record.ID = s.nextID
	s.nextID++
	record.Status = data.EventStatusPending
	clone := *record
	s.records[record.EventID] = &clone
	return nil
}

func (s *stubEventRepo) GetByEventID(ctx context.Context, eventID string) (*data.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[eventID]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, nil
}

func (s *stubEventRepo) MarkProcessed(ctx context.Context, id int64, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id && r.Status != data.EventStatusProcessed {
			r.Status = data.EventStatusProcessed
			r.Result = &result
		}
	}
	return nil
}

func (s *stubEventRepo) MarkFailed(ctx context.Context, id int64, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id && r.Status != data.EventStatusProcessed {
			r.Status = data.EventStatusFailed
			r.LastError = procErr
		}
	}
	return nil
}

func (s *stubEventRepo) ReclaimForRetry(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id && r.Status == data.EventStatusFailed {
			r.Status = data.EventStatusPending
			r.RetryCount++
			return true, nil
		}
	}
	return false, nil
}

func (s *stubEventRepo) ListByStatus(ctx context.Context, status data.EventStatus, page, pageSize int32) ([]*data.EventRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.EventRecord
	for _, r := range s.records {
		if status == "" || r.Status == status {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func newTestEventService(t *testing.T) *EventService {
	logger := log.NewStdLogger(os.Stdout)
	guard := biz.NewIdempotencyUsecase(newStubEventRepo(), logger)
	return NewEventService(guard, logger)
}

func TestSubmitEvent_New(t *testing.T) {
	svc := newTestEventService(t)

	reply, err := svc.SubmitEvent(context.Background(), &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   json.RawMessage(`{"order_id":"o-1","amount":10}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW", reply.Outcome)
	assert.Contains(t, string(reply.Result), `"order_id":"o-1"`)
}

func TestSubmitEvent_DuplicateReturnsOriginalResult(t *testing.T) {
	svc := newTestEventService(t)
	ctx := context.Background()

	first, err := svc.SubmitEvent(ctx, &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   json.RawMessage(`{"order_id":"o-1"}`),
	})
	require.NoError(t, err)

	second, err := svc.SubmitEvent(ctx, &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   json.RawMessage(`{"order_id":"o-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "DUPLICATE_PROCESSED", second.Outcome)
	assert.JSONEq(t, string(first.Result), string(second.Result))
}

func TestSubmitEvent_Validation(t *testing.T) {
	svc := newTestEventService(t)
	ctx := context.Background()

	_, err := svc.SubmitEvent(ctx, &SubmitEventRequest{EventType: "order.created"})
	require.Error(t, err)
	assert.Equal(t, biz.ReasonValidation, kerrors.FromError(err).Reason)

	_, err = svc.SubmitEvent(ctx, &SubmitEventRequest{EventID: "evt-1"})
	require.Error(t, err)
	assert.Equal(t, biz.ReasonValidation, kerrors.FromError(err).Reason)

	_, err = svc.SubmitEvent(ctx, &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   json.RawMessage(`{not json`),
	})
	require.Error(t, err)
	assert.Equal(t, biz.ReasonValidation, kerrors.FromError(err).Reason)
}

func TestSubmitEvent_MalformedPayloadFailsThenRetries(t *testing.T) {
	svc := newTestEventService(t)
	ctx := context.Background()

	// Valid JSON overall but the wrong shape for the handler: processing
	// fails and the event becomes retryable.
	_, err := svc.SubmitEvent(ctx, &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   json.RawMessage(`{"order_id":123}`),
	})
	require.Error(t, err)
	assert.Equal(t, biz.ReasonProcessingFailed, kerrors.FromError(err).Reason)

	list, err := svc.ListEvents(ctx, "failed", 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Events, 1)
	assert.Equal(t, "failed", list.Events[0].Status)
}

func TestSubmitEvent_UnknownTypeAcknowledged(t *testing.T) {
	svc := newTestEventService(t)

	reply, err := svc.SubmitEvent(context.Background(), &SubmitEventRequest{
		EventID:   "evt-1",
		EventType: "unknown.type",
		Payload:   json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW", reply.Outcome)
	assert.Contains(t, string(reply.Result), `"handled":false`)
}

func TestListEvents_Empty(t *testing.T) {
	svc := newTestEventService(t)

	reply, err := svc.ListEvents(context.Background(), "", 1, 50)
	require.NoError(t, err)
	assert.Empty(t, reply.Events)
	assert.Equal(t, int64(0), reply.Total)
}
