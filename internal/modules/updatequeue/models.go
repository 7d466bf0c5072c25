package updatequeue

import (
	"errors"
	"time"
)

// JobStatus represents the status of one account refresh within a queue.
type JobStatus string

const (
	// JobPending indicates the refresh has not started yet.
	JobPending JobStatus = "pending"
	// JobProcessing indicates a broker call is in flight for the account.
	JobProcessing JobStatus = "processing"
	// JobSuccess indicates the snapshot was fetched and persisted.
	JobSuccess JobStatus = "success"
	// JobFailed indicates the broker call or persistence failed; the detail is
	// kept in the job's error description. Failed jobs are not retried within
	// the same queue - a new queue must be created to retry them.
	JobFailed JobStatus = "failed"
	// JobBlocked indicates the account was rejected before any broker call
	// because its contest is finished or archived.
	JobBlocked JobStatus = "blocked"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobBlocked
}

// Messages recorded on jobs the engine finishes on its own. Kept fixed so
// operators can tell "broker said no" from "we gave up waiting".
const (
	BlockedMessage      = "account updates are blocked for finished or archived contests"
	StaleTimeoutMessage = "processing timed out; reclaimed by the stale queue check"
)

var (
	// ErrEmptyAccountSet is returned when queue creation receives no account ids.
	ErrEmptyAccountSet = errors.New("no accounts selected for update")
	// ErrQueueNotFound is returned for status requests naming an unknown queue.
	ErrQueueNotFound = errors.New("queue not found")
)

// Queue is a batch of account refresh jobs created together.
type Queue struct {
	Seq         int64      `json:"-"` // Creation order, assigned by the store
	ID          string     `json:"queue_id"`
	ContestID   *int64     `json:"contest_id,omitempty"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	IsAuto      bool       `json:"is_auto"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Job is the per-account unit of work within a queue.
type Job struct {
	QueueID          string     `json:"queue_id"`
	AccountID        int64      `json:"account_id"`
	Status           JobStatus  `json:"status"`
	ConnectionStatus string     `json:"connection_status,omitempty"`
	ErrorDescription string     `json:"error_description,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// JobCounts summarizes the jobs of one queue by status.
type JobCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
}

// Terminal returns how many jobs have reached a terminal status.
func (c JobCounts) Terminal() int {
	return c.Success + c.Failed + c.Blocked
}

// QueueHandle is the creation response handed back to the client.
type QueueHandle struct {
	QueueID   string `json:"queue_id"`
	ContestID *int64 `json:"contest_id,omitempty"`
	Total     int    `json:"total"`
}

// AccountState is the externally visible state of one job.
type AccountState struct {
	Status           JobStatus `json:"status"`
	ConnectionStatus string    `json:"connection_status,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// QueueSnapshot is the read-only projection of a queue served to polling clients.
type QueueSnapshot struct {
	QueueID   string                 `json:"queue_id"`
	ContestID *int64                 `json:"contest_id,omitempty"`
	IsRunning bool                   `json:"is_running"`
	Total     int                    `json:"total"`
	Completed int                    `json:"completed"`
	Progress  int                    `json:"progress"` // Percent, 0-100
	CreatedAt time.Time              `json:"created_at"`
	Accounts  map[int64]AccountState `json:"accounts"`
}

// AggregateSnapshot unions the queues of one contest (or all queues).
type AggregateSnapshot struct {
	IsRunning   bool                     `json:"is_running"`
	ContestID   *int64                   `json:"contest_id,omitempty"`
	Total       int                      `json:"total"`
	Completed   int                      `json:"completed"`
	Progress    int                      `json:"progress"`
	QueuesCount int                      `json:"queues_count"`
	Queues      map[string]QueueSnapshot `json:"queues"`
}

// HistoryRecord is one finished queue kept for the operator-facing history.
type HistoryRecord struct {
	ID         int64     `json:"id"`
	QueueID    string    `json:"queue_id"`
	ContestID  *int64    `json:"contest_id,omitempty"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Blocked    int       `json:"blocked"`
	IsAuto     bool      `json:"is_auto"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func progressPercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(completed)/float64(total)*100 + 0.5)
}
