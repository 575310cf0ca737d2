package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/lightspeed-trading/tradebook/ledger"
)

func GetConnPool(dbName string, dbUser string, dbPass string, dbHost string, testing bool) (*pgxpool.Pool, error) {
	// establish db name
	if testing {
		dbName += "_dev"
	}
	if dbHost == "" {
		dbHost = "localhost:5432"
	}

	// create pool config
	connectionString := fmt.Sprintf(
		"postgresql://%s:%s@%s/%s",
		dbUser, dbPass, dbHost, dbName,
	)
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse pool config: %v", err)
	}

	// Set AfterConnect hook to register decimal type
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	// create pool with the config
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to db: %v", err)
	}

	return pool, nil
}

// the subset of pgxpool.Pool and pgx.Tx that the store uses
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresStore is the Store backed by the trades and transactions tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tradeColumns = `trade_id, symbol, instrument, side, status, multiplier, strike, expiration,
	option_type, legs, average_cost, current_size, realized_pnl, created_by, created_at, closed_at`

func scanTrade(row scanner) (Trade, error) {
	var tr Trade
	var instrument, side, status string

	err := row.Scan(
		&tr.TradeID, &tr.Symbol, &instrument, &side, &status, &tr.Multiplier, &tr.Strike, &tr.Expiration,
		&tr.OptionType, &tr.Legs, &tr.AverageCost, &tr.CurrentSize, &tr.RealizedPnL, &tr.CreatedBy, &tr.CreatedAt, &tr.ClosedAt,
	)
	if err != nil {
		return tr, err
	}

	tr.Instrument = Instrument(instrument)
	tr.Side, err = ledger.ParseSide(side)
	if err != nil {
		return tr, err
	}
	tr.Status, err = ParseTradeStatus(status)
	return tr, err
}

func (s *PostgresStore) CreateTrade(ctx context.Context, tr Trade, first Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx, %v", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(
		ctx,
		`INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		tr.TradeID, tr.Symbol, string(tr.Instrument), string(tr.Side), string(tr.Status), tr.Multiplier, tr.Strike, tr.Expiration,
		tr.OptionType, pq.Array(tr.Legs), tr.AverageCost, tr.CurrentSize, tr.RealizedPnL, tr.CreatedBy, tr.CreatedAt, tr.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s, %w", tr.TradeID, err)
	}

	if _, err := insertTransaction(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit, %v", err)
	}
	return nil
}

func (s *PostgresStore) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	return getTrade(ctx, s.pool, tradeID, false)
}

func getTrade(ctx context.Context, q querier, tradeID string, forUpdate bool) (Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	tr, err := scanTrade(q.QueryRow(ctx, query, tradeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return tr, ErrNoTrade
	} else if err != nil {
		return tr, fmt.Errorf("failed to scan trade %s, %w", tradeID, err)
	}
	return tr, nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, status TradeStatus) ([]Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades, %v", err)
	}
	defer rows.Close()

	trades := []Trade{}
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade, %v", err)
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) GetTransactions(ctx context.Context, tradeID string) ([]Transaction, error) {
	return getTransactions(ctx, s.pool, tradeID)
}

// transactions of a trade in the order they were recorded
func getTransactions(ctx context.Context, q querier, tradeID string) ([]Transaction, error) {
	rows, err := q.Query(
		ctx,
		`SELECT id, trade_id, transaction_type, amount, size, realized_pnl, created_at
		FROM transactions WHERE trade_id = $1 ORDER BY created_at, id`,
		tradeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions, %v", err)
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var tx Transaction
		var kind string
		err := rows.Scan(&tx.ID, &tx.TradeID, &kind, &tx.Amount, &tx.Size, &tx.RealizedPnL, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction, %v", err)
		}
		tx.TransactionType, err = ledger.ParseFillKind(kind)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func insertTransaction(ctx context.Context, q querier, tx Transaction) (Transaction, error) {
	err := q.QueryRow(
		ctx,
		`INSERT INTO transactions (trade_id, transaction_type, amount, size, realized_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		tx.TradeID, string(tx.TransactionType), tx.Amount, tx.Size, tx.RealizedPnL, tx.CreatedAt,
	).Scan(&tx.ID)
	if err != nil {
		return tx, fmt.Errorf("failed to insert %s transaction for %s, %w", tx.TransactionType, tx.TradeID, err)
	}
	return tx, nil
}

// UpdateTrade locks the trade row for the length of a db transaction, so
// concurrent fills against one trade are applied one after the other.
func (s *PostgresStore) UpdateTrade(ctx context.Context, tradeID string, fn UpdateFunc) (Trade, Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Trade{}, Transaction{}, fmt.Errorf("failed to begin tx, %v", err)
	}
	defer tx.Rollback(ctx)

	tr, err := getTrade(ctx, tx, tradeID, true)
	if err != nil {
		return Trade{}, Transaction{}, err
	}
	history, err := getTransactions(ctx, tx, tradeID)
	if err != nil {
		return Trade{}, Transaction{}, err
	}

	updated, newTx, err := fn(tr, history)
	if err != nil {
		return Trade{}, Transaction{}, err
	}

	newTx, err = insertTransaction(ctx, tx, newTx)
	if err != nil {
		return Trade{}, Transaction{}, err
	}

	_, err = tx.Exec(
		ctx,
		`UPDATE trades
		SET status = $1, average_cost = $2, current_size = $3, realized_pnl = $4, closed_at = $5
		WHERE trade_id = $6`,
		string(updated.Status), updated.AverageCost, updated.CurrentSize, updated.RealizedPnL, updated.ClosedAt, tradeID,
	)
	if err != nil {
		return Trade{}, Transaction{}, fmt.Errorf("failed to update trade %s, %w", tradeID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Trade{}, Transaction{}, fmt.Errorf("failed to commit, %v", err)
	}
	return updated, newTx, nil
}

var exitKinds = []string{string(ledger.Trim), string(ledger.Close)}

func (s *PostgresStore) ListExits(ctx context.Context, since time.Time) ([]Exit, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT t.trade_id, t.symbol, t.side, x.transaction_type, x.amount, x.size, x.realized_pnl, x.created_at
		FROM transactions x JOIN trades t ON t.trade_id = x.trade_id
		WHERE x.transaction_type = ANY($1) AND x.created_at >= $2
		ORDER BY t.symbol, x.created_at`,
		pq.Array(exitKinds), since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query exits, %v", err)
	}
	defer rows.Close()

	exits := []Exit{}
	for rows.Next() {
		var e Exit
		var side, kind string
		err := rows.Scan(&e.TradeID, &e.Symbol, &side, &kind, &e.Amount, &e.Size, &e.RealizedPnL, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exit, %v", err)
		}
		e.Side = ledger.Side(side)
		e.TransactionType = ledger.FillKind(kind)
		exits = append(exits, e)
	}
	return exits, rows.Err()
}
