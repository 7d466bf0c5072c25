package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/locking"
	"github.com/fttrader/contest-sync/internal/modules/updatequeue"
)

// UpdateTickJob drives the account update queues: each run reclaims stale
// work, dispatches pending jobs and closes finished queues.
type UpdateTickJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	driver      *updatequeue.Driver
}

// UpdateTickConfig holds configuration for the update tick job.
type UpdateTickConfig struct {
	Log         zerolog.Logger
	LockManager *locking.Manager
	Driver      *updatequeue.Driver
}

// NewUpdateTickJob creates a new update tick job.
func NewUpdateTickJob(cfg UpdateTickConfig) *UpdateTickJob {
	return &UpdateTickJob{
		log:         cfg.Log.With().Str("job", "update_tick").Logger(),
		lockManager: cfg.LockManager,
		driver:      cfg.Driver,
	}
}

// Name returns the job name.
func (j *UpdateTickJob) Name() string {
	return "update_tick"
}

// Run executes one driver tick. Overlapping runs are skipped, a slow tick must
// finish before the next one starts.
func (j *UpdateTickJob) Run() error {
	if err := j.lockManager.Acquire("update_tick"); err != nil {
		j.log.Warn().Err(err).Msg("Update tick already running")
		return nil
	}
	defer j.lockManager.Release("update_tick")

	startTime := time.Now()
	if err := j.driver.Tick(); err != nil {
		return err
	}
	j.log.Debug().Dur("duration", time.Since(startTime)).Msg("Update tick finished")
	return nil
}
