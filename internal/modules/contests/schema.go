package contests

import "database/sql"

const contestsSchema = `
CREATE TABLE IF NOT EXISTS contests (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    archived INTEGER NOT NULL DEFAULT 0,
    start_date TEXT,
    end_date TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contests_status ON contests(status);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(contestsSchema)
	return err
}
