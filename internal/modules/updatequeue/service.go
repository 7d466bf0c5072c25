package updatequeue

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/events"
)

// Manager is the queue-facing API used by handlers and scheduler jobs.
type Manager struct {
	store        *Store
	limiter      *Limiter
	events       *events.Manager
	staleTimeout time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

// NewManager creates a queue manager.
func NewManager(store *Store, limiter *Limiter, eventManager *events.Manager,
	staleTimeout time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		store:        store,
		limiter:      limiter,
		events:       eventManager,
		staleTimeout: staleTimeout,
		log:          log.With().Str("component", "update_manager").Logger(),
		now:          time.Now,
	}
}

// Limiter exposes the shared limiter for status reporting.
func (m *Manager) Limiter() *Limiter {
	return m.limiter
}

// CreateQueue registers a new queue with one pending job per account id.
// Duplicate ids are collapsed; an empty set is rejected.
func (m *Manager) CreateQueue(accountIDs []int64, contestID *int64, isAuto bool) (*QueueHandle, error) {
	ids := dedupeAccountIDs(accountIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyAccountSet
	}

	queue := &Queue{
		ID:        newQueueID(),
		ContestID: contestID,
		IsAuto:    isAuto,
		CreatedAt: m.now(),
	}
	if err := m.store.CreateQueue(queue, ids); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("queue_id", queue.ID).
		Int("total", queue.Total).
		Bool("is_auto", isAuto).
		Msg("Queue created")
	m.events.Emit(events.QueueCreated, "updatequeue", map[string]interface{}{
		"queue_id": queue.ID,
		"total":    queue.Total,
		"is_auto":  isAuto,
	})

	return &QueueHandle{QueueID: queue.ID, ContestID: contestID, Total: queue.Total}, nil
}

// QueueStatus returns the snapshot of one queue.
func (m *Manager) QueueStatus(queueID string) (*QueueSnapshot, error) {
	queue, err := m.store.GetQueue(queueID)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, ErrQueueNotFound
	}
	jobs, err := m.store.GetJobs(queueID)
	if err != nil {
		return nil, err
	}
	snapshot := m.buildSnapshot(*queue, jobs)
	return &snapshot, nil
}

// ContestStatus aggregates every queue of one contest, or every queue when
// contestID is nil.
func (m *Manager) ContestStatus(contestID *int64) (*AggregateSnapshot, error) {
	queues, err := m.store.ListQueues(contestID)
	if err != nil {
		return nil, err
	}

	agg := &AggregateSnapshot{
		ContestID: contestID,
		Queues:    make(map[string]QueueSnapshot, len(queues)),
	}
	for _, queue := range queues {
		jobs, err := m.store.GetJobs(queue.ID)
		if err != nil {
			return nil, err
		}
		snapshot := m.buildSnapshot(queue, jobs)
		agg.Queues[queue.ID] = snapshot
		agg.Total += snapshot.Total
		agg.Completed += snapshot.Completed
		if snapshot.IsRunning {
			agg.IsRunning = true
		}
	}
	agg.QueuesCount = len(queues)
	agg.Progress = progressPercent(agg.Completed, agg.Total)
	return agg, nil
}

// ClearAllQueues drops every queue and job and resets the limiter, so leaked
// slots from dropped processing jobs cannot starve future work.
func (m *Manager) ClearAllQueues() (int, error) {
	cleared, err := m.store.ClearAll()
	if err != nil {
		return 0, err
	}
	released := m.limiter.Reset()

	m.log.Info().
		Int("cleared", cleared).
		Int("slots_released", released).
		Msg("All queues cleared")
	m.events.Emit(events.QueuesCleared, "updatequeue", map[string]interface{}{
		"cleared":        cleared,
		"slots_released": released,
	})
	return cleared, nil
}

// ResetActiveRequests forces the limiter back to zero and returns the previous
// in-flight count.
func (m *Manager) ResetActiveRequests() int {
	prev := m.limiter.Reset()
	m.log.Warn().Int("previous", prev).Msg("Active request counter reset")
	return prev
}

// History returns the most recent finished queues.
func (m *Manager) History(limit int) ([]HistoryRecord, error) {
	return m.store.ListHistory(limit)
}

// buildSnapshot projects a queue and its jobs into the client-facing shape.
// A queue counts as running while it has non-terminal jobs and is younger than
// the stale timeout.
func (m *Manager) buildSnapshot(queue Queue, jobs []Job) QueueSnapshot {
	snapshot := QueueSnapshot{
		QueueID:   queue.ID,
		ContestID: queue.ContestID,
		Total:     queue.Total,
		CreatedAt: queue.CreatedAt,
		Accounts:  make(map[int64]AccountState, len(jobs)),
	}
	completed := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			completed++
		}
		snapshot.Accounts[job.AccountID] = AccountState{
			Status:           job.Status,
			ConnectionStatus: job.ConnectionStatus,
			ErrorDescription: job.ErrorDescription,
		}
	}
	snapshot.Completed = completed
	snapshot.Progress = progressPercent(completed, queue.Total)
	age := m.now().Sub(queue.CreatedAt)
	snapshot.IsRunning = queue.CompletedAt == nil && completed < queue.Total && age < m.staleTimeout
	return snapshot
}

// newQueueID builds a short unique queue id such as "q3f9a1c0d".
func newQueueID() string {
	return "q" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func dedupeAccountIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
