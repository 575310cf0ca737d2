package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	instrument   TEXT NOT NULL,
	side         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'open',
	multiplier   NUMERIC NOT NULL,
	strike       NUMERIC,
	expiration   DATE,
	option_type  TEXT NOT NULL DEFAULT '',
	legs         TEXT[] NOT NULL DEFAULT '{}',
	average_cost NUMERIC NOT NULL,
	current_size NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL DEFAULT 0,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	closed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS transactions (
	id               BIGSERIAL PRIMARY KEY,
	trade_id         TEXT NOT NULL REFERENCES trades (trade_id),
	transaction_type TEXT NOT NULL,
	amount           NUMERIC NOT NULL,
	size             NUMERIC NOT NULL,
	realized_pnl     NUMERIC,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_trade_id_idx ON transactions (trade_id, created_at);
`

// creates the trades and transactions tables if they don't exist
func CreateTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create tables, %v", err)
	}
	return nil
}

// empties both tables, only ever used against the _dev db
func TruncateTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE transactions, trades;")
	if err != nil {
		return fmt.Errorf("failed to truncate, %v", err)
	}
	return nil
}
