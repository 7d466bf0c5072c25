package contests

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles contest persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new contest repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "contests").Logger(),
	}
}

// Create inserts a new contest
func (r *Repository) Create(contest *Contest) (*Contest, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.Exec(
		`INSERT INTO contests (name, status, archived, start_date, end_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		contest.Name,
		contest.Status,
		boolToInt(contest.Archived),
		contest.StartDate,
		contest.EndDate,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert contest: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	contest.ID = id
	contest.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return contest, nil
}

// GetByID retrieves a contest by ID. Returns nil when not found.
func (r *Repository) GetByID(id int64) (*Contest, error) {
	row := r.db.QueryRow(
		`SELECT id, name, status, archived, start_date, end_date, created_at
		 FROM contests WHERE id = ?`, id)

	contest, err := scanContest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	return contest, nil
}

// ListActive retrieves all contests accepting account updates
func (r *Repository) ListActive() ([]Contest, error) {
	rows, err := r.db.Query(
		`SELECT id, name, status, archived, start_date, end_date, created_at
		 FROM contests
		 WHERE status = ? AND archived = 0
		 ORDER BY id`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query contests: %w", err)
	}
	defer rows.Close()

	var contests []Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, *contest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contests: %w", err)
	}
	return contests, nil
}

// IsClosed reports the eligibility state of a contest for account updates.
// Unknown contests are treated as closed so orphaned accounts never hit the broker.
func (r *Repository) IsClosed(contestID int64) (finished, archived bool, err error) {
	contest, err := r.GetByID(contestID)
	if err != nil {
		return false, false, err
	}
	if contest == nil {
		return true, false, nil
	}
	return contest.Status == StatusFinished, contest.Archived, nil
}

// SetStatus updates the contest status
func (r *Repository) SetStatus(contestID int64, status string) error {
	_, err := r.db.Exec(`UPDATE contests SET status = ? WHERE id = ?`, status, contestID)
	if err != nil {
		return fmt.Errorf("failed to update contest status: %w", err)
	}
	return nil
}

// SetArchived updates the contest archived flag
func (r *Repository) SetArchived(contestID int64, archived bool) error {
	_, err := r.db.Exec(`UPDATE contests SET archived = ? WHERE id = ?`, boolToInt(archived), contestID)
	if err != nil {
		return fmt.Errorf("failed to update contest archived flag: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContest(row rowScanner) (*Contest, error) {
	var c Contest
	var archived int
	var startDate, endDate sql.NullString
	var createdAt string

	err := row.Scan(&c.ID, &c.Name, &c.Status, &archived, &startDate, &endDate, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Archived = archived != 0
	c.StartDate = startDate.String
	c.EndDate = endDate.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
