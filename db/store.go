package db

import (
	"context"
	"errors"
	"time"
)

var ErrNoTrade = errors.New("trade doesn't exist")

// UpdateFunc receives a trade and its full transaction history while the
// trade is locked, and returns the updated summary row plus the single
// transaction to append. Returning an error aborts without writing.
type UpdateFunc func(tr Trade, txs []Transaction) (Trade, Transaction, error)

// Store persists trades and their transactions. Implementations must run
// UpdateTrade so that no two updates of the same trade interleave their
// read and write.
type Store interface {
	CreateTrade(ctx context.Context, tr Trade, first Transaction) error
	GetTrade(ctx context.Context, tradeID string) (Trade, error)
	ListTrades(ctx context.Context, status TradeStatus) ([]Trade, error) // "" lists all
	GetTransactions(ctx context.Context, tradeID string) ([]Transaction, error)
	UpdateTrade(ctx context.Context, tradeID string, fn UpdateFunc) (Trade, Transaction, error)
	ListExits(ctx context.Context, since time.Time) ([]Exit, error)
}
