package accounts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/clients/broker"
)

// Repository handles account persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

const accountColumns = `id, contest_id, account_number, password, server, platform,
	balance, equity, margin, profit, leverage, currency,
	connection_status, error_description, last_update_time, created_at`

// Create inserts a new account
func (r *Repository) Create(account *Account) (*Account, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	if account.ConnectionStatus == "" {
		account.ConnectionStatus = broker.StatusDisconnected
	}
	if account.Currency == "" {
		account.Currency = "USD"
	}

	result, err := r.db.Exec(
		`INSERT INTO accounts (contest_id, account_number, password, server, platform,
			balance, equity, margin, profit, leverage, currency,
			connection_status, error_description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ContestID,
		account.AccountNumber,
		account.Password,
		account.Server,
		account.Platform,
		account.Balance,
		account.Equity,
		account.Margin,
		account.Profit,
		account.Leverage,
		account.Currency,
		account.ConnectionStatus,
		account.ErrorDescription,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	account.ID = id
	account.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return account, nil
}

// GetByID retrieves an account by ID. Returns nil when not found.
func (r *Repository) GetByID(id int64) (*Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListByContest retrieves all accounts in a contest
func (r *Repository) ListByContest(contestID int64) ([]Account, error) {
	rows, err := r.db.Query(
		`SELECT `+accountColumns+` FROM accounts WHERE contest_id = ? ORDER BY id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListUpdatable returns the contest's account ids eligible for an automatic
// refresh: every account that is not disqualified, plus disqualified accounts
// whose data has gone stale (not refreshed for a day).
func (r *Repository) ListUpdatable(contestID int64, now time.Time) ([]int64, error) {
	cutoff := now.Add(-24 * time.Hour).UTC().Format(time.RFC3339)

	rows, err := r.db.Query(
		`SELECT id FROM accounts
		 WHERE contest_id = ?
		   AND (connection_status != ?
		        OR last_update_time IS NULL
		        OR last_update_time < ?)
		 ORDER BY id`,
		contestID, broker.StatusDisqualified, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query updatable accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return ids, nil
}

// ApplySnapshot writes a broker snapshot through to the account row and replaces
// its open orders, inside one transaction. A disqualified account keeps its
// connection status: the snapshot's balances are recorded but the broker cannot
// un-disqualify an account by merely reconnecting.
func (r *Repository) ApplySnapshot(accountID int64, snapshot *broker.Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentStatus string
	err = tx.QueryRow(`SELECT connection_status FROM accounts WHERE id = ?`, accountID).
		Scan(&currentStatus)
	if err == sql.ErrNoRows {
		return fmt.Errorf("account %d not found", accountID)
	}
	if err != nil {
		return fmt.Errorf("failed to read account status: %w", err)
	}

	status := snapshot.ConnectionStatus
	if currentStatus == broker.StatusDisqualified && status != broker.StatusDisqualified {
		r.log.Debug().Int64("account_id", accountID).
			Msg("Keeping disqualified status despite snapshot")
		status = broker.StatusDisqualified
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(
		`UPDATE accounts
		 SET balance = ?, equity = ?, margin = ?, profit = ?, leverage = ?,
		     currency = ?, connection_status = ?, error_description = ?,
		     last_update_time = ?
		 WHERE id = ?`,
		snapshot.Balance,
		snapshot.Equity,
		snapshot.Margin,
		snapshot.Profit,
		snapshot.Leverage,
		snapshot.Currency,
		status,
		snapshot.ErrorDescription,
		now,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	// Open orders are replaced wholesale on every snapshot
	if _, err := tx.Exec(`DELETE FROM account_orders WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}

	for _, order := range snapshot.Orders {
		_, err := tx.Exec(
			`INSERT INTO account_orders (account_id, ticket, symbol, type, lots, open_price, open_time, profit)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			accountID,
			order.Ticket,
			order.Symbol,
			order.Type,
			order.Lots,
			order.OpenPrice,
			order.OpenTime,
			order.Profit,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order %d: %w", order.Ticket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// GetOrders retrieves the stored open orders for an account
func (r *Repository) GetOrders(accountID int64) ([]OpenOrder, error) {
	rows, err := r.db.Query(
		`SELECT id, account_id, ticket, symbol, type, lots, open_price, open_time, profit
		 FROM account_orders WHERE account_id = ? ORDER BY ticket`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []OpenOrder
	for rows.Next() {
		var o OpenOrder
		var openTime sql.NullString
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Ticket, &o.Symbol, &o.Type,
			&o.Lots, &o.OpenPrice, &openTime, &o.Profit); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.OpenTime = openTime.String
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var platform, errorDesc, lastUpdate sql.NullString
	var createdAt string

	err := row.Scan(
		&a.ID, &a.ContestID, &a.AccountNumber, &a.Password, &a.Server, &platform,
		&a.Balance, &a.Equity, &a.Margin, &a.Profit, &a.Leverage, &a.Currency,
		&a.ConnectionStatus, &errorDesc, &lastUpdate, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Platform = platform.String
	a.ErrorDescription = errorDesc.String
	if lastUpdate.Valid {
		if t, err := time.Parse(time.RFC3339, lastUpdate.String); err == nil {
			a.LastUpdateTime = &t
		}
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
