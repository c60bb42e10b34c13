// Package jobs schedules the recurring warehouse work that runs inside
// the serve process.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novalyte/vantage/internal/logging"
)

// SyncRunner is the warehouse sync entry point. *warehouse.Syncer
// satisfies it.
type SyncRunner interface {
	Sync(ctx context.Context) error
}

// CronManager owns the cron scheduler and the jobs registered on it.
type CronManager struct {
	cron   *cron.Cron
	syncer SyncRunner
}

// NewCronManager builds a manager around the given syncer.
func NewCronManager(syncer SyncRunner) *CronManager {
	return &CronManager{
		cron:   cron.New(),
		syncer: syncer,
	}
}

// SetupJobs registers the periodic warehouse sync on the given cron
// schedule.
func (cm *CronManager) SetupJobs(schedule string) error {
	_, err := cm.cron.AddFunc(schedule, func() {
		logging.L().Info("running scheduled warehouse sync")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := cm.syncer.Sync(ctx); err != nil {
			logging.L().Error("scheduled warehouse sync failed", "error", err)
			return
		}
		logging.L().Info("scheduled warehouse sync completed")
	})
	if err != nil {
		return err
	}

	logging.L().Info("cron jobs configured", "sync_schedule", schedule)
	return nil
}

// Start starts the scheduler.
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (cm *CronManager) Stop() {
	<-cm.cron.Stop().Done()
}
