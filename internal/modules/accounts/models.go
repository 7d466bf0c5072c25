package accounts

import (
	"time"

	"github.com/fttrader/contest-sync/internal/clients/broker"
)

// Account represents a contest member trading account
type Account struct {
	ID            int64  `json:"id"`
	ContestID     int64  `json:"contest_id"`
	AccountNumber string `json:"account_number"`
	Password      string `json:"-"` // Broker investor password, never exposed
	Server        string `json:"server"`
	Platform      string `json:"platform,omitempty"` // mt4, mt5

	// Latest snapshot fields
	Balance          float64 `json:"balance"`
	Equity           float64 `json:"equity"`
	Margin           float64 `json:"margin"`
	Profit           float64 `json:"profit"`
	Leverage         int     `json:"leverage"`
	Currency         string  `json:"currency"`
	ConnectionStatus string  `json:"connection_status"`
	ErrorDescription string  `json:"error_description,omitempty"`

	LastUpdateTime *time.Time `json:"last_update_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Credentials returns the broker credentials for this account
func (a *Account) Credentials() broker.Credentials {
	return broker.Credentials{
		AccountNumber: a.AccountNumber,
		Password:      a.Password,
		Server:        a.Server,
	}
}

// OpenOrder is a stored open order belonging to an account
type OpenOrder struct {
	ID        int64   `json:"id,omitempty"`
	AccountID int64   `json:"account_id"`
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
	OpenTime  string  `json:"open_time"`
	Profit    float64 `json:"profit"`
}
