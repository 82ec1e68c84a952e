package data

import (
	"context"
	"regexp"
	"testing"
	"time"

	pkgerrors "RelayGuard/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupEventTestDB creates a test database connection with sqlmock
func setupEventTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	cleanup := func() {
		sqlDB.Close()
	}

	return gormDB, mock, cleanup
}

func TestInsertPending(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `event_records`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &EventRecord{
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   `{"order_id":"o-1"}`,
	}
	err := repo.InsertPending(context.Background(), record)
	assert.NoError(t, err)
	assert.Equal(t, EventStatusPending, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPending_DuplicateKey(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `event_records`")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'evt-1' for key 'uk_event_id'"})
	mock.ExpectRollback()

	err := repo.InsertPending(context.Background(), &EventRecord{
		EventID:   "evt-1",
		EventType: "order.created",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsDuplicateKeyError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEventID_NotFound(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `event_records`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	record, err := repo.GetByEventID(context.Background(), "evt-missing")
	assert.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEventID_Found(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	rows := sqlmock.NewRows([]string{"id", "event_id", "event_type", "status", "retry_count", "created_at", "updated_at"}).
		AddRow(7, "evt-1", "order.created", "processed", 0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `event_records`")).
		WithArgs("evt-1", 1).
		WillReturnRows(rows)

	record, err := repo.GetByEventID(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(7), record.ID)
	assert.Equal(t, EventStatusProcessed, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `event_records`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkProcessed(context.Background(), 7, `{"ok":true}`)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed_AlreadyProcessedIsNoOp(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `event_records`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkProcessed(context.Background(), 7, `{"ok":true}`)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimForRetry_Claimed(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `event_records`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ReclaimForRetry(context.Background(), 7)
	assert.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimForRetry_LostRace(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	// Another worker already flipped the row back to pending; the status
	// guard makes this update match zero rows.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `event_records`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.ReclaimForRetry(context.Background(), 7)
	assert.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatus_PageSizeClamped(t *testing.T) {
	gormDB, mock, cleanup := setupEventTestDB(t)
	defer cleanup()

	repo := NewEventRepo(gormDB, log.DefaultLogger)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `event_records`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `event_records`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "status"}).
			AddRow(1, "evt-1", "pending"))

	records, total, err := repo.ListByStatus(context.Background(), EventStatusPending, 0, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
