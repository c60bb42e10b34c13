package database

import (
	"time"

	"github.com/novalyte/vantage/internal/logging"
)

var (
	nowFunc             = time.Now
	retentionPeriodDays = 90
)

// RetentionScheduler trims old page events on a daily cadence. Leads are
// never trimmed; the CRM owns their lifecycle.
type RetentionScheduler struct {
	stopChan chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler.
func NewRetentionScheduler() *RetentionScheduler {
	return &RetentionScheduler{
		stopChan: make(chan struct{}),
	}
}

// Start begins the retention task.
func (rs *RetentionScheduler) Start() {
	logging.L().Info("starting event retention scheduler", "retention_days", retentionPeriodDays)
	go rs.scheduleTrim()
}

// Stop gracefully stops the scheduler.
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
}

func (rs *RetentionScheduler) scheduleTrim() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	// Run immediately on start
	rs.trimOldEvents()

	for {
		select {
		case <-ticker.C:
			rs.trimOldEvents()
		case <-rs.stopChan:
			return
		}
	}
}

// trimOldEvents deletes page events older than the retention period.
func (rs *RetentionScheduler) trimOldEvents() {
	cutoff := nowFunc().AddDate(0, 0, -retentionPeriodDays)

	result, err := DB.Exec(`DELETE FROM page_events WHERE created_at < $1`, cutoff)
	if err != nil {
		logging.L().Warn("failed to trim old events", "error", err)
		return
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		logging.L().Info("trimmed old events", "deleted", deleted, "cutoff", cutoff.Format("2006-01-02"))
	}
}
