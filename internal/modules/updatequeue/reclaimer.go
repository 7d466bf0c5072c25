package updatequeue

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/events"
)

// Reclaimer fails processing jobs stuck inside queues older than the stale
// timeout, so a crashed or hung broker call cannot pin a queue open forever.
type Reclaimer struct {
	store   *Store
	timeout time.Duration
	events  *events.Manager
	log     zerolog.Logger
}

// NewReclaimer creates a reclaimer with the given stale timeout.
func NewReclaimer(store *Store, timeout time.Duration, eventManager *events.Manager, log zerolog.Logger) *Reclaimer {
	return &Reclaimer{
		store:   store,
		timeout: timeout,
		events:  eventManager,
		log:     log.With().Str("component", "reclaimer").Logger(),
	}
}

// Reclaim fails processing jobs in every unfinished queue created at or before
// now minus the stale timeout. Pending jobs in those queues are left alone so
// the next dispatch can still pick them up. It returns the touched queue ids.
func (r *Reclaimer) Reclaim(now time.Time) ([]string, error) {
	cutoff := now.Add(-r.timeout)
	queueIDs, err := r.store.FailStaleProcessing(cutoff, StaleTimeoutMessage, now)
	if err != nil {
		return queueIDs, err
	}
	for _, queueID := range queueIDs {
		r.log.Warn().
			Str("queue_id", queueID).
			Dur("timeout", r.timeout).
			Msg("Reclaimed stale processing jobs")
		r.events.Emit(events.StaleReclaimed, "updatequeue", map[string]interface{}{
			"queue_id": queueID,
		})
	}
	return queueIDs, nil
}
