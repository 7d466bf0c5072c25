package updatequeue

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/clients/broker"
	"github.com/fttrader/contest-sync/internal/events"
)

// BrokerAccount carries what the worker needs to refresh one account.
type BrokerAccount struct {
	ID          int64
	ContestID   int64
	Credentials broker.Credentials
}

// AccountSource resolves account ids into broker credentials.
type AccountSource interface {
	BrokerAccount(accountID int64) (*BrokerAccount, error)
}

// ContestGate answers whether a contest no longer accepts account updates.
type ContestGate interface {
	IsClosed(contestID int64) (finished, archived bool, err error)
}

// BrokerClient fetches account snapshots from the broker bridge.
type BrokerClient interface {
	FetchSnapshot(creds broker.Credentials) (*broker.Snapshot, error)
}

// SnapshotSink persists a fetched snapshot onto the account record.
type SnapshotSink interface {
	ApplySnapshot(accountID int64, snapshot *broker.Snapshot) error
}

// Outcome is the result of attempting to start one job.
type Outcome int

const (
	// OutcomeDeferred means no limiter slot was available; the job stays pending.
	OutcomeDeferred Outcome = iota
	// OutcomeBlocked means the job was blocked before any broker call.
	OutcomeBlocked
	// OutcomeFailed means the job failed before any broker call.
	OutcomeFailed
	// OutcomeStarted means the job is processing and holds a limiter slot.
	OutcomeStarted
)

// Worker runs individual jobs: eligibility, the broker call and the terminal
// transition.
type Worker struct {
	store    *Store
	limiter  *Limiter
	accounts AccountSource
	gate     ContestGate
	broker   BrokerClient
	sink     SnapshotSink
	events   *events.Manager
	log      zerolog.Logger
	now      func() time.Time
}

// NewWorker creates a worker.
func NewWorker(store *Store, limiter *Limiter, accounts AccountSource, gate ContestGate,
	brokerClient BrokerClient, sink SnapshotSink, eventManager *events.Manager, log zerolog.Logger) *Worker {
	return &Worker{
		store:    store,
		limiter:  limiter,
		accounts: accounts,
		gate:     gate,
		broker:   brokerClient,
		sink:     sink,
		events:   eventManager,
		log:      log.With().Str("component", "update_worker").Logger(),
		now:      time.Now,
	}
}

// Start runs the synchronous part of a job: eligibility, slot acquisition and
// the transition to processing. Eligibility is checked before the limiter so a
// closed contest blocks its jobs even when every slot is busy. On
// OutcomeStarted the caller must invoke Execute, which releases the slot.
func (w *Worker) Start(job Job) (Outcome, *BrokerAccount, error) {
	now := w.now()

	account, err := w.accounts.BrokerAccount(job.AccountID)
	if err != nil {
		return w.failBeforeStart(job, fmt.Sprintf("account lookup failed: %v", err), now)
	}
	if account == nil {
		return w.failBeforeStart(job, "account not found", now)
	}

	finished, archived, err := w.gate.IsClosed(account.ContestID)
	if err != nil {
		return w.failBeforeStart(job, fmt.Sprintf("contest lookup failed: %v", err), now)
	}
	if finished || archived {
		if err := w.store.FinishJob(job.QueueID, job.AccountID, JobBlocked, "", BlockedMessage, now); err != nil {
			return OutcomeBlocked, nil, err
		}
		w.log.Info().
			Str("queue_id", job.QueueID).
			Int64("account_id", job.AccountID).
			Int64("contest_id", account.ContestID).
			Msg("Job blocked, contest is closed")
		w.events.Emit(events.AccountBlocked, "updatequeue", map[string]interface{}{
			"queue_id":   job.QueueID,
			"account_id": job.AccountID,
			"contest_id": account.ContestID,
		})
		return OutcomeBlocked, nil, nil
	}

	if !w.limiter.TryAcquire() {
		return OutcomeDeferred, nil, nil
	}

	started, err := w.store.MarkProcessing(job.QueueID, job.AccountID, now)
	if err != nil {
		w.limiter.Release()
		return OutcomeDeferred, nil, err
	}
	if !started {
		// Someone else already moved this job; give the slot back.
		w.limiter.Release()
		return OutcomeDeferred, nil, nil
	}
	return OutcomeStarted, account, nil
}

// Execute performs the broker call for a job that Start moved to processing
// and records the terminal status. It always releases the limiter slot.
func (w *Worker) Execute(job Job, account *BrokerAccount) {
	defer w.limiter.Release()
	now := w.now

	snapshot, err := w.broker.FetchSnapshot(account.Credentials)
	if err != nil {
		w.finishFailed(job, fmt.Sprintf("broker request failed: %v", err))
		return
	}

	if err := w.sink.ApplySnapshot(job.AccountID, snapshot); err != nil {
		w.finishFailed(job, fmt.Sprintf("failed to persist snapshot: %v", err))
		return
	}

	if err := w.store.FinishJob(job.QueueID, job.AccountID, JobSuccess,
		snapshot.ConnectionStatus, snapshot.ErrorDescription, now()); err != nil {
		w.log.Error().Err(err).
			Str("queue_id", job.QueueID).
			Int64("account_id", job.AccountID).
			Msg("Failed to record job success")
		return
	}
	w.log.Debug().
		Str("queue_id", job.QueueID).
		Int64("account_id", job.AccountID).
		Str("connection_status", snapshot.ConnectionStatus).
		Msg("Account updated")
	w.events.Emit(events.AccountUpdated, "updatequeue", map[string]interface{}{
		"queue_id":          job.QueueID,
		"account_id":        job.AccountID,
		"connection_status": snapshot.ConnectionStatus,
	})
}

func (w *Worker) failBeforeStart(job Job, message string, now time.Time) (Outcome, *BrokerAccount, error) {
	if err := w.store.FinishJob(job.QueueID, job.AccountID, JobFailed, "", message, now); err != nil {
		return OutcomeFailed, nil, err
	}
	w.log.Warn().
		Str("queue_id", job.QueueID).
		Int64("account_id", job.AccountID).
		Str("reason", message).
		Msg("Job failed before dispatch")
	return OutcomeFailed, nil, nil
}

func (w *Worker) finishFailed(job Job, message string) {
	if err := w.store.FinishJob(job.QueueID, job.AccountID, JobFailed, broker.StatusDisconnected, message, w.now()); err != nil {
		w.log.Error().Err(err).
			Str("queue_id", job.QueueID).
			Int64("account_id", job.AccountID).
			Msg("Failed to record job failure")
		return
	}
	w.log.Warn().
		Str("queue_id", job.QueueID).
		Int64("account_id", job.AccountID).
		Str("reason", message).
		Msg("Account update failed")
	w.events.EmitError("updatequeue", fmt.Errorf("account update failed: %s", message), map[string]interface{}{
		"queue_id":   job.QueueID,
		"account_id": job.AccountID,
	})
}
