package updatequeue

import "database/sql"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS update_queues (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    contest_id INTEGER,
    total INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    is_auto INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_update_queues_contest ON update_queues(contest_id);
CREATE INDEX IF NOT EXISTS idx_update_queues_completed ON update_queues(completed_at);

CREATE TABLE IF NOT EXISTS update_jobs (
    queue_id TEXT NOT NULL,
    account_id INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    connection_status TEXT NOT NULL DEFAULT '',
    error_description TEXT NOT NULL DEFAULT '',
    started_at TEXT,
    finished_at TEXT,
    PRIMARY KEY (queue_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_update_jobs_status ON update_jobs(status);

CREATE TABLE IF NOT EXISTS update_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_id TEXT NOT NULL,
    contest_id INTEGER,
    total INTEGER NOT NULL,
    success INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    blocked INTEGER NOT NULL,
    is_auto INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_update_history_finished ON update_history(finished_at);
`

// InitSchema creates the queue, job and history tables.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
