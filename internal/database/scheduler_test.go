package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMockDB(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	original := DB
	DB = mockDB

	return mock, func() {
		DB = original
		_ = mockDB.Close()
	}
}

func TestTrimOldEventsDeletesPastRetention(t *testing.T) {
	mock, cleanup := withMockDB(t)
	defer cleanup()

	fixed := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	originalNow := nowFunc
	nowFunc = func() time.Time { return fixed }
	t.Cleanup(func() { nowFunc = originalNow })

	mock.ExpectExec("DELETE FROM page_events WHERE created_at <").
		WithArgs(fixed.AddDate(0, 0, -retentionPeriodDays)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	rs := NewRetentionScheduler()
	rs.trimOldEvents()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrimOldEventsSurvivesQueryError(t *testing.T) {
	mock, cleanup := withMockDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM page_events").
		WillReturnError(assert.AnError)

	rs := NewRetentionScheduler()
	rs.trimOldEvents() // logs and returns, must not panic

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionSchedulerStopCloses(t *testing.T) {
	rs := NewRetentionScheduler()
	rs.Stop()

	select {
	case <-rs.stopChan:
	default:
		t.Fatal("stop channel not closed")
	}
}
