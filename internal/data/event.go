package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "RelayGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// EventStatus represents the database ENUM type for event status.
type EventStatus string

// Event status constants forming the idempotency state machine.
// pending → processed (terminal) or failed; a failed row is reclaimed for
// retry in place, never replaced by a fresh pending row.
const (
	EventStatusPending   EventStatus = "pending"
	EventStatusProcessed EventStatus = "processed"
	EventStatusFailed    EventStatus = "failed"
)

// EventRecord is the GORM model for the event_records table.
// The unique index on event_id is the dedup mechanism: application-level
// existence checks are unsafe under concurrent duplicate delivery, so the
// store constraint is the source of truth. Rows are never deleted by this
// layer; they double as an audit trail.
type EventRecord struct {
	ID          int64       `gorm:"primaryKey;column:id"`
	EventID     string      `gorm:"column:event_id;size:128;not null;uniqueIndex:uk_event_id"`
	EventType   string      `gorm:"column:event_type;size:100;not null;index"`
	Payload     string      `gorm:"column:payload;type:json"`
	Status      EventStatus `gorm:"column:status;type:enum('pending','processed','failed');default:'pending';not null;index"`
	Result      *string     `gorm:"column:result;type:json"`
	LastError   string      `gorm:"column:last_error;size:512"`
	RetryCount  int32       `gorm:"column:retry_count;default:0;not null"`
	ProcessedAt *time.Time  `gorm:"column:processed_at"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (EventRecord) TableName() string {
	return "event_records"
}

// EventRepo implements biz.EventRepo against MySQL.
type EventRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewEventRepo creates a new event record repository.
func NewEventRepo(db *gorm.DB, logger log.Logger) *EventRepo {
	return &EventRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// InsertPending inserts a new record in pending status. A duplicate-key
// violation means a concurrent admitter won the race; callers detect that
// with pkg/errors.IsDuplicateKeyError.
func (r *EventRepo) InsertPending(ctx context.Context, record *EventRecord) error {
	record.Status = EventStatusPending

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if pkgerrors.IsDuplicateKeyError(err) {
			r.logger.Debugw("concurrent insert lost the uniqueness race",
				"event_id", record.EventID)
			return err
		}
		return fmt.Errorf("failed to insert event record: %w", err)
	}

	return nil
}

// GetByEventID looks up a record by its external event identifier.
// Returns (nil, nil) when no record exists.
func (r *EventRepo) GetByEventID(ctx context.Context, eventID string) (*EventRecord, error) {
	var record EventRecord
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event record: %w", err)
	}

	return &record, nil
}

// MarkProcessed transitions a record to processed and stores the completion
// result. The update is conditional on the record not already being
// processed, so a duplicate completion is a no-op rather than an overwrite.
func (r *EventRepo) MarkProcessed(ctx context.Context, id int64, result string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("id = ? AND status <> ?", id, EventStatusProcessed).
		Updates(map[string]interface{}{
			"status":       EventStatusProcessed,
			"result":       result,
			"last_error":   "",
			"processed_at": now,
			"updated_at":   now,
		})

	if res.Error != nil {
		return fmt.Errorf("failed to mark event processed: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		r.logger.Debugw("event already processed, completion is a no-op", "id", id)
	}

	return nil
}

// MarkFailed transitions a record to failed, recording the processing error.
// A record already processed stays processed.
func (r *EventRepo) MarkFailed(ctx context.Context, id int64, procErr string) error {
	if len(procErr) > 512 {
		procErr = procErr[:512]
	}

	res := r.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("id = ? AND status <> ?", id, EventStatusProcessed).
		Updates(map[string]interface{}{
			"status":     EventStatusFailed,
			"last_error": procErr,
			"updated_at": time.Now().UTC(),
		})

	if res.Error != nil {
		return fmt.Errorf("failed to mark event failed: %w", res.Error)
	}

	return nil
}

// ReclaimForRetry moves a failed record back to pending and increments its
// retry counter, reusing the same row. The status guard makes concurrent
// reclaims race-free: exactly one caller observes RowsAffected == 1 and owns
// the retry, everyone else sees the record as in flight.
func (r *EventRepo) ReclaimForRetry(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("id = ? AND status = ?", id, EventStatusFailed).
		Updates(map[string]interface{}{
			"status":      EventStatusPending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UTC(),
		})

	if res.Error != nil {
		return false, fmt.Errorf("failed to reclaim event for retry: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// ListByStatus returns a page of event records filtered by status.
// An empty status lists all records. Results are newest first.
func (r *EventRepo) ListByStatus(ctx context.Context, status EventStatus, page, pageSize int32) ([]*EventRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).Model(&EventRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count event records: %w", err)
	}

	var records []*EventRecord
	err := query.
		Order("id DESC").
		Limit(int(pageSize)).
		Offset(int((page - 1) * pageSize)).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list event records: %w", err)
	}

	return records, total, nil
}
