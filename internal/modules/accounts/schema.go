package accounts

import "database/sql"

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY,
    contest_id INTEGER NOT NULL,
    account_number TEXT NOT NULL,
    password TEXT NOT NULL,
    server TEXT NOT NULL,
    platform TEXT,
    balance REAL NOT NULL DEFAULT 0,
    equity REAL NOT NULL DEFAULT 0,
    margin REAL NOT NULL DEFAULT 0,
    profit REAL NOT NULL DEFAULT 0,
    leverage INTEGER NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'USD',
    connection_status TEXT NOT NULL DEFAULT 'disconnected',
    error_description TEXT,
    last_update_time TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_contest ON accounts(contest_id);
CREATE INDEX IF NOT EXISTS idx_accounts_connection ON accounts(connection_status);

CREATE TABLE IF NOT EXISTS account_orders (
    id INTEGER PRIMARY KEY,
    account_id INTEGER NOT NULL,
    ticket INTEGER NOT NULL,
    symbol TEXT NOT NULL,
    type TEXT NOT NULL,
    lots REAL NOT NULL,
    open_price REAL NOT NULL,
    open_time TEXT,
    profit REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_account_orders_account ON account_orders(account_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(accountsSchema)
	return err
}
