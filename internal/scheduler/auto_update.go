package scheduler

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/events"
	"github.com/fttrader/contest-sync/internal/locking"
	"github.com/fttrader/contest-sync/internal/modules/accounts"
	"github.com/fttrader/contest-sync/internal/modules/contests"
	"github.com/fttrader/contest-sync/internal/modules/updatequeue"
)

// AutoUpdateJob creates refresh queues for every active contest on a schedule,
// so snapshots stay current without anyone pressing the update button.
// Disqualified accounts are skipped unless their snapshot has gone stale.
type AutoUpdateJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	contests    *contests.Repository
	accounts    *accounts.Repository
	manager     *updatequeue.Manager
	events      *events.Manager
	interval    time.Duration
	lastRun     time.Time
}

// AutoUpdateConfig holds configuration for the auto update job.
type AutoUpdateConfig struct {
	Log         zerolog.Logger
	LockManager *locking.Manager
	Contests    *contests.Repository
	Accounts    *accounts.Repository
	Manager     *updatequeue.Manager
	Events      *events.Manager
	Interval    time.Duration
}

// NewAutoUpdateJob creates a new auto update job.
func NewAutoUpdateJob(cfg AutoUpdateConfig) *AutoUpdateJob {
	return &AutoUpdateJob{
		log:         cfg.Log.With().Str("job", "auto_update").Logger(),
		lockManager: cfg.LockManager,
		contests:    cfg.Contests,
		accounts:    cfg.Accounts,
		manager:     cfg.Manager,
		events:      cfg.Events,
		interval:    cfg.Interval,
	}
}

// Name returns the job name.
func (j *AutoUpdateJob) Name() string {
	return "auto_update"
}

// Run creates one queue per active contest with accounts due for a refresh.
// Runs closer together than the configured interval are skipped, as are
// contests with a queue still in flight.
func (j *AutoUpdateJob) Run() error {
	if err := j.lockManager.Acquire("auto_update"); err != nil {
		j.log.Warn().Err(err).Msg("Auto update already running")
		return nil
	}
	defer j.lockManager.Release("auto_update")

	now := time.Now()
	if !j.lastRun.IsZero() && now.Sub(j.lastRun) < j.interval {
		return nil
	}
	j.lastRun = now

	active, err := j.contests.ListActive()
	if err != nil {
		return err
	}
	if len(active) == 0 {
		j.log.Debug().Msg("No active contests, nothing to update")
		return nil
	}

	j.events.Emit(events.AutoUpdateStart, "scheduler", map[string]interface{}{
		"contests": len(active),
	})

	created := 0
	for _, contest := range active {
		status, err := j.manager.ContestStatus(&contest.ID)
		if err != nil {
			j.log.Error().Err(err).Int64("contest_id", contest.ID).Msg("Failed to check contest status")
			continue
		}
		if status.IsRunning {
			j.log.Debug().Int64("contest_id", contest.ID).Msg("Contest still updating, skipping")
			continue
		}

		accountIDs, err := j.accounts.ListUpdatable(contest.ID, now)
		if err != nil {
			j.log.Error().Err(err).Int64("contest_id", contest.ID).Msg("Failed to list updatable accounts")
			continue
		}

		contestID := contest.ID
		handle, err := j.manager.CreateQueue(accountIDs, &contestID, true)
		if err != nil {
			if errors.Is(err, updatequeue.ErrEmptyAccountSet) {
				continue
			}
			j.log.Error().Err(err).Int64("contest_id", contest.ID).Msg("Failed to create auto update queue")
			continue
		}
		created++
		j.log.Info().
			Int64("contest_id", contest.ID).
			Str("queue_id", handle.QueueID).
			Int("total", handle.Total).
			Msg("Auto update queue created")
	}

	if created > 0 {
		j.log.Info().Int("queues_created", created).Msg("Auto update pass finished")
	}
	return nil
}
