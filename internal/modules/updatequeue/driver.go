package updatequeue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/events"
)

// Driver advances every queue on each scheduler tick: reclaim stale work,
// dispatch pending jobs through the worker, close finished queues and prune
// old ones.
type Driver struct {
	store     *Store
	worker    *Worker
	reclaimer *Reclaimer
	events    *events.Manager
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewDriver creates a driver. Queues finished longer than retention ago are
// pruned at the end of each tick.
func NewDriver(store *Store, worker *Worker, reclaimer *Reclaimer,
	eventManager *events.Manager, retention time.Duration, log zerolog.Logger) *Driver {
	return &Driver{
		store:     store,
		worker:    worker,
		reclaimer: reclaimer,
		events:    eventManager,
		retention: retention,
		log:       log.With().Str("component", "update_driver").Logger(),
	}
}

func (d *Driver) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// Tick runs one full pass over the queues. Broker calls run concurrently up to
// the limiter's slot count; Tick waits for the ones it started before closing
// out queues, so a queue's completed counter reflects this tick's work.
func (d *Driver) Tick() error {
	now := d.clock()

	reclaimed, err := d.reclaimer.Reclaim(now)
	if err != nil {
		return fmt.Errorf("stale reclaim failed: %w", err)
	}

	pending, err := d.store.ListPendingJobs()
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}

	touched := make(map[string]bool)
	for _, queueID := range reclaimed {
		touched[queueID] = true
	}

	var wg sync.WaitGroup
	started, deferred := 0, 0
	// Every pending job gets a Start attempt even with the limiter exhausted,
	// so ineligible jobs are blocked regardless of slot availability.
	for _, job := range pending {
		outcome, account, err := d.worker.Start(job)
		if err != nil {
			d.log.Error().Err(err).
				Str("queue_id", job.QueueID).
				Int64("account_id", job.AccountID).
				Msg("Failed to start job")
			touched[job.QueueID] = true
			continue
		}
		switch outcome {
		case OutcomeStarted:
			started++
			touched[job.QueueID] = true
			wg.Add(1)
			go func(job Job, account *BrokerAccount) {
				defer wg.Done()
				d.worker.Execute(job, account)
			}(job, account)
		case OutcomeBlocked, OutcomeFailed:
			touched[job.QueueID] = true
		case OutcomeDeferred:
			deferred++
		}
	}
	wg.Wait()

	for queueID := range touched {
		if err := d.closeOut(queueID); err != nil {
			d.log.Error().Err(err).Str("queue_id", queueID).Msg("Failed to close out queue")
		}
	}

	pruned, err := d.store.PruneCompleted(d.clock().Add(-d.retention))
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to prune completed queues")
	}

	if started > 0 || deferred > 0 || len(touched) > 0 || pruned > 0 {
		d.log.Info().
			Int("started", started).
			Int("deferred", deferred).
			Int("queues_touched", len(touched)).
			Int64("queues_pruned", pruned).
			Msg("Update tick completed")
	}
	return nil
}

// closeOut refreshes a queue's completed counter and, when the queue just
// finished, writes its history record.
func (d *Driver) closeOut(queueID string) error {
	queue, closed, err := d.store.RecountCompleted(queueID, d.clock())
	if err != nil {
		return err
	}
	if queue == nil || !closed {
		return nil
	}

	counts, err := d.store.CountJobs(queueID)
	if err != nil {
		return err
	}
	rec := HistoryRecord{
		QueueID:    queue.ID,
		ContestID:  queue.ContestID,
		Total:      queue.Total,
		Success:    counts.Success,
		Failed:     counts.Failed,
		Blocked:    counts.Blocked,
		IsAuto:     queue.IsAuto,
		StartedAt:  queue.CreatedAt,
		FinishedAt: *queue.CompletedAt,
	}
	if err := d.store.AppendHistory(rec); err != nil {
		return err
	}

	d.log.Info().
		Str("queue_id", queue.ID).
		Int("total", queue.Total).
		Int("success", counts.Success).
		Int("failed", counts.Failed).
		Int("blocked", counts.Blocked).
		Msg("Queue completed")
	d.events.Emit(events.QueueCompleted, "updatequeue", map[string]interface{}{
		"queue_id": queue.ID,
		"total":    queue.Total,
		"success":  counts.Success,
		"failed":   counts.Failed,
		"blocked":  counts.Blocked,
	})
	return nil
}
