package contests

import "time"

// Contest status values
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Contest represents a trading contest
type Contest struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // active, finished
	Archived  bool      `json:"archived"`
	StartDate string    `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   string    `json:"end_date,omitempty"`   // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}

// Closed reports whether account updates are blocked for this contest
func (c *Contest) Closed() bool {
	return c.Status == StatusFinished || c.Archived
}
