package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Connection status values reported by the trading API for an account.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisqualified = "disqualified"
)

// Client for the external trading API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// ServiceResponse is the standard response format
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// NewClient creates a new trading API client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "broker").Logger(),
	}
}

// post makes a POST request to the trading API
func (c *Client) post(endpoint string, request interface{}) (*ServiceResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// get makes a GET request to the trading API
func (c *Client) get(endpoint string) (*ServiceResponse, error) {
	url := c.baseURL + endpoint
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the service response
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		return &result, fmt.Errorf("trading API error: %s", errMsg)
	}

	return &result, nil
}

// Credentials identify a trading account on the broker platform
type Credentials struct {
	AccountNumber string `json:"account_number"`
	Password      string `json:"password"`
	Server        string `json:"server"`
}

// Order represents an open order on a trading account
type Order struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
	OpenTime  string  `json:"open_time"`
	Profit    float64 `json:"profit"`
}

// Snapshot is the account state reported by the broker platform
type Snapshot struct {
	Balance          float64 `json:"balance"`
	Equity           float64 `json:"equity"`
	Margin           float64 `json:"margin"`
	Profit           float64 `json:"profit"`
	Leverage         int     `json:"leverage"`
	Currency         string  `json:"currency"`
	ConnectionStatus string  `json:"connection_status"`
	ErrorDescription string  `json:"error_description"`
	Orders           []Order `json:"orders"`
}

// FetchSnapshot fetches the current account state from the broker platform.
// A returned error means the API call itself failed; a snapshot with
// connection_status "disconnected" is a successful call reporting a dead account.
func (c *Client) FetchSnapshot(creds Credentials) (*Snapshot, error) {
	resp, err := c.post("/api/accounts/snapshot", creds)
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(resp.Data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return &snapshot, nil
}

// PingResponse is the response for Ping
type PingResponse struct {
	Status string `json:"status"`
}

// Ping checks trading API availability
func (c *Client) Ping() error {
	resp, err := c.get("/api/ping")
	if err != nil {
		return err
	}

	var result PingResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ping response: %w", err)
	}

	if result.Status != "online" {
		return fmt.Errorf("trading API reported status %q", result.Status)
	}

	return nil
}
