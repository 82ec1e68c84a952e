package service

import (
	"context"
	"encoding/json"
	"time"

	"RelayGuard/internal/biz"
	"RelayGuard/internal/data"

	"github.com/go-kratos/kratos/v2/log"
)

// SubmitEventRequest is the inbound event delivery.
type SubmitEventRequest struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"data"`
}

// SubmitEventReply reports the admission outcome and, when processing ran
// or already ran, its result.
type SubmitEventReply struct {
	EventID string          `json:"event_id"`
	Outcome string          `json:"outcome"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// EventView is the list representation of an event record.
type EventView struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	Status      string `json:"status"`
	RetryCount  int32  `json:"retry_count"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// ListEventsReply is a page of event records.
type ListEventsReply struct {
	Events   []*EventView `json:"events"`
	Total    int64        `json:"total"`
	Page     int32        `json:"page"`
	PageSize int32        `json:"page_size"`
}

// EventService handles idempotent event submission.
type EventService struct {
	guard  *biz.IdempotencyUsecase
	logger *log.Helper
}

// NewEventService creates the event service and registers the event type
// handlers the deployment processes.
func NewEventService(guard *biz.IdempotencyUsecase, logger log.Logger) *EventService {
	s := &EventService{
		guard:  guard,
		logger: log.NewHelper(logger),
	}
	s.guard.RegisterHandler("order.created", s.handleOrderCreated)
	return s
}

// SubmitEvent admits the delivery through the idempotency guard and runs
// processing when this caller owns it. Duplicate deliveries are answered
// idempotently: processed duplicates return the original result, in-flight
// duplicates return a conflict.
func (s *EventService) SubmitEvent(ctx context.Context, req *SubmitEventRequest) (*SubmitEventReply, error) {
	if req.EventID == "" {
		return nil, biz.ErrValidation("event_id is required")
	}
	if req.EventType == "" {
		return nil, biz.ErrValidation("event_type is required")
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, biz.ErrValidation("data must be valid JSON")
	}

	admission, err := s.guard.Admit(ctx, req.EventID, req.EventType, string(req.Payload))
	if err != nil {
		s.logger.Errorw("event admission failed", "event_id", req.EventID, "error", err)
		return nil, biz.ErrStoreUnavailable(err)
	}

	switch admission.Outcome {
	case biz.AdmitNew, biz.AdmitRetry:
		result, err := s.guard.Process(ctx, admission.Record)
		if err != nil {
			return nil, err
		}
		return &SubmitEventReply{
			EventID: req.EventID,
			Outcome: string(admission.Outcome),
			Result:  json.RawMessage(result),
		}, nil

	case biz.AdmitDuplicateProcessed:
		return &SubmitEventReply{
			EventID: req.EventID,
			Outcome: string(admission.Outcome),
			Result:  json.RawMessage(admission.Result),
		}, nil

	default: // DUPLICATE_PENDING
		return nil, biz.ErrDuplicateInFlight(req.EventID)
	}
}

// ListEvents returns a page of event records, optionally filtered by status.
func (s *EventService) ListEvents(ctx context.Context, status string, page, pageSize int32) (*ListEventsReply, error) {
	records, total, err := s.guard.ListEvents(ctx, data.EventStatus(status), page, pageSize)
	if err != nil {
		s.logger.Errorw("failed to list events", "error", err)
		return nil, biz.ErrStoreUnavailable(err)
	}

	views := make([]*EventView, 0, len(records))
	for _, r := range records {
		v := &EventView{
			EventID:    r.EventID,
			EventType:  r.EventType,
			Status:     string(r.Status),
			RetryCount: r.RetryCount,
			LastError:  r.LastError,
			CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		}
		if r.ProcessedAt != nil {
			v.ProcessedAt = r.ProcessedAt.Format(time.RFC3339)
		}
		views = append(views, v)
	}
	return &ListEventsReply{
		Events:   views,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// handleOrderCreated processes order.created events. The payload is echoed
// into a confirmation result; a payload that fails to parse fails the event
// so redelivery can retry it.
func (s *EventService) handleOrderCreated(ctx context.Context, record *data.EventRecord) (string, error) {
	var order struct {
		OrderID string  `json:"order_id"`
		Amount  float64 `json:"amount"`
	}
	if record.Payload != "" {
		if err := json.Unmarshal([]byte(record.Payload), &order); err != nil {
			return "", err
		}
	}
	s.logger.Infow("order event processed",
		"event_id", record.EventID,
		"order_id", order.OrderID)

	out, err := json.Marshal(map[string]any{
		"confirmed":    true,
		"order_id":     order.OrderID,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
