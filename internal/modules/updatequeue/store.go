package updatequeue

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// historyLimit caps the number of finished queues kept in update_history.
const historyLimit = 50

// Store handles persistence for queues, jobs and the update history.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a queue store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "updatequeue").Logger(),
	}
}

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Rows written by older builds used second precision.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// CreateQueue inserts a queue together with one pending job per account id,
// atomically. The caller is responsible for deduplicating account ids.
func (s *Store) CreateQueue(q *Queue, accountIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO update_queues (id, contest_id, total, completed, is_auto, created_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		q.ID, q.ContestID, len(accountIDs), boolToInt(q.IsAuto), formatTime(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert queue %s: %w", q.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read queue seq: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO update_jobs (queue_id, account_id, status)
		VALUES (?, ?, 'pending')`)
	if err != nil {
		return fmt.Errorf("failed to prepare job insert: %w", err)
	}
	defer stmt.Close()

	for _, accountID := range accountIDs {
		if _, err := stmt.Exec(q.ID, accountID); err != nil {
			return fmt.Errorf("failed to insert job for account %d: %w", accountID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue %s: %w", q.ID, err)
	}

	q.Seq = seq
	q.Total = len(accountIDs)
	return nil
}

const queueColumns = `seq, id, contest_id, total, completed, is_auto, created_at, completed_at`

// GetQueue returns the queue with the given id, or nil when it does not exist.
func (s *Store) GetQueue(queueID string) (*Queue, error) {
	row := s.db.QueryRow(`SELECT `+queueColumns+` FROM update_queues WHERE id = ?`, queueID)
	q, err := scanQueue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue %s: %w", queueID, err)
	}
	return q, nil
}

// ListQueues returns all queues in creation order. When contestID is non-nil
// only that contest's queues are returned.
func (s *Store) ListQueues(contestID *int64) ([]Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM update_queues`
	args := []interface{}{}
	if contestID != nil {
		query += ` WHERE contest_id = ?`
		args = append(args, *contestID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	defer rows.Close()

	var queues []Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		queues = append(queues, *q)
	}
	return queues, rows.Err()
}

// GetJobs returns the jobs of one queue ordered by account id.
func (s *Store) GetJobs(queueID string) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT queue_id, account_id, status, connection_status, error_description, started_at, finished_at
		FROM update_jobs
		WHERE queue_id = ?
		ORDER BY account_id`, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs for queue %s: %w", queueID, err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListPendingJobs returns every pending job across unfinished queues, oldest
// queue first and account id order within a queue. This is the dispatch order.
func (s *Store) ListPendingJobs() ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT j.queue_id, j.account_id, j.status, j.connection_status, j.error_description, j.started_at, j.finished_at
		FROM update_jobs j
		JOIN update_queues q ON q.id = j.queue_id
		WHERE j.status = 'pending' AND q.completed_at IS NULL
		ORDER BY q.seq, j.account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkProcessing moves a pending job to processing. It reports false when the
// job was not pending anymore, so concurrent dispatchers cannot double-start it.
func (s *Store) MarkProcessing(queueID string, accountID int64, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE update_jobs
		SET status = 'processing', started_at = ?
		WHERE queue_id = ? AND account_id = ? AND status = 'pending'`,
		formatTime(now), queueID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to mark job %s/%d processing: %w", queueID, accountID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// FinishJob moves a non-terminal job to a terminal status and records its
// connection status and error description.
func (s *Store) FinishJob(queueID string, accountID int64, status JobStatus, connStatus, errDesc string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finish job %s/%d with non-terminal status %s", queueID, accountID, status)
	}
	_, err := s.db.Exec(`
		UPDATE update_jobs
		SET status = ?, connection_status = ?, error_description = ?, finished_at = ?
		WHERE queue_id = ? AND account_id = ? AND status IN ('pending', 'processing')`,
		string(status), connStatus, errDesc, formatTime(now), queueID, accountID)
	if err != nil {
		return fmt.Errorf("failed to finish job %s/%d: %w", queueID, accountID, err)
	}
	return nil
}

// CountJobs tallies a queue's jobs by status.
func (s *Store) CountJobs(queueID string) (JobCounts, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM update_jobs WHERE queue_id = ? GROUP BY status`, queueID)
	if err != nil {
		return JobCounts{}, fmt.Errorf("failed to count jobs for queue %s: %w", queueID, err)
	}
	defer rows.Close()

	var counts JobCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return JobCounts{}, fmt.Errorf("failed to scan job count: %w", err)
		}
		switch JobStatus(status) {
		case JobPending:
			counts.Pending = n
		case JobProcessing:
			counts.Processing = n
		case JobSuccess:
			counts.Success = n
		case JobFailed:
			counts.Failed = n
		case JobBlocked:
			counts.Blocked = n
		}
	}
	return counts, rows.Err()
}

// RecountCompleted refreshes a queue's completed counter from its jobs and, if
// every job is terminal, stamps completed_at. It reports whether the queue was
// closed by this call.
func (s *Store) RecountCompleted(queueID string, now time.Time) (*Queue, bool, error) {
	counts, err := s.CountJobs(queueID)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.Exec(`
		UPDATE update_queues
		SET completed = ?,
		    completed_at = CASE WHEN ? >= total AND completed_at IS NULL THEN ? ELSE completed_at END
		WHERE id = ? AND completed_at IS NULL`,
		counts.Terminal(), counts.Terminal(), formatTime(now), queueID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to recount queue %s: %w", queueID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	q, err := s.GetQueue(queueID)
	if err != nil {
		return nil, false, err
	}
	if q == nil {
		return nil, false, nil
	}
	closed := affected == 1 && q.CompletedAt != nil
	return q, closed, nil
}

// FailStaleProcessing fails every processing job inside unfinished queues that
// were created at or before the cutoff. It returns the ids of touched queues.
func (s *Store) FailStaleProcessing(cutoff time.Time, message string, now time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT q.id
		FROM update_queues q
		JOIN update_jobs j ON j.queue_id = q.id
		WHERE q.completed_at IS NULL AND q.created_at <= ? AND j.status = 'processing'
		ORDER BY q.seq`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to find stale queues: %w", err)
	}
	defer rows.Close()

	var queueIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale queue id: %w", err)
		}
		queueIDs = append(queueIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, queueID := range queueIDs {
		_, err := s.db.Exec(`
			UPDATE update_jobs
			SET status = 'failed', error_description = ?, finished_at = ?
			WHERE queue_id = ? AND status = 'processing'`,
			message, formatTime(now), queueID)
		if err != nil {
			return queueIDs, fmt.Errorf("failed to reclaim queue %s: %w", queueID, err)
		}
	}
	return queueIDs, nil
}

// ClearAll removes every queue and job and returns how many queues were dropped.
func (s *Store) ClearAll() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM update_queues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queues: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM update_jobs`); err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM update_queues`); err != nil {
		return 0, fmt.Errorf("failed to delete queues: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}
	return count, nil
}

// PruneCompleted drops finished queues (and their jobs) completed before the
// cutoff. History rows are unaffected.
func (s *Store) PruneCompleted(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM update_jobs
		WHERE queue_id IN (
			SELECT id FROM update_queues
			WHERE completed_at IS NOT NULL AND completed_at < ?
		)`, formatTime(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	res, err := tx.Exec(`
		DELETE FROM update_queues
		WHERE completed_at IS NOT NULL AND completed_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune queues: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return pruned, nil
}

// AppendHistory records a finished queue and trims the history to its cap.
func (s *Store) AppendHistory(rec HistoryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO update_history (queue_id, contest_id, total, success, failed, blocked, is_auto, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueueID, rec.ContestID, rec.Total, rec.Success, rec.Failed, rec.Blocked,
		boolToInt(rec.IsAuto), formatTime(rec.StartedAt), formatTime(rec.FinishedAt)); err != nil {
		return fmt.Errorf("failed to insert history for queue %s: %w", rec.QueueID, err)
	}
	if _, err := tx.Exec(`
		DELETE FROM update_history
		WHERE id NOT IN (SELECT id FROM update_history ORDER BY id DESC LIMIT ?)`,
		historyLimit); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent history records, newest first.
func (s *Store) ListHistory(limit int) ([]HistoryRecord, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	rows, err := s.db.Query(`
		SELECT id, queue_id, contest_id, total, success, failed, blocked, is_auto, started_at, finished_at
		FROM update_history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var isAuto int
		var startedAt, finishedAt string
		if err := rows.Scan(&rec.ID, &rec.QueueID, &rec.ContestID, &rec.Total,
			&rec.Success, &rec.Failed, &rec.Blocked, &isAuto, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.IsAuto = isAuto != 0
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse history started_at: %w", err)
		}
		if rec.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse history finished_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueue(row rowScanner) (*Queue, error) {
	var q Queue
	var isAuto int
	var createdAt string
	var completedAt sql.NullString
	if err := row.Scan(&q.Seq, &q.ID, &q.ContestID, &q.Total, &q.Completed, &isAuto, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	q.IsAuto = isAuto != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queue created_at: %w", err)
	}
	q.CreatedAt = t
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse queue completed_at: %w", err)
		}
		q.CompletedAt = &t
	}
	return &q, nil
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var j Job
		var status string
		var startedAt, finishedAt sql.NullString
		if err := rows.Scan(&j.QueueID, &j.AccountID, &status, &j.ConnectionStatus, &j.ErrorDescription, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.Status = JobStatus(status)
		if startedAt.Valid {
			t, err := parseTime(startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse job started_at: %w", err)
			}
			j.StartedAt = &t
		}
		if finishedAt.Valid {
			t, err := parseTime(finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse job finished_at: %w", err)
			}
			j.FinishedAt = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
