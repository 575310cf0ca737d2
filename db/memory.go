package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used by tests and when no db is
// configured. UpdateTrade holds the write lock for its whole read-modify-write.
type MemoryStore struct {
	mu     sync.RWMutex
	trades map[string]Trade
	txs    map[string][]Transaction
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades: make(map[string]Trade),
		txs:    make(map[string][]Transaction),
	}
}

func (s *MemoryStore) CreateTrade(_ context.Context, tr Trade, first Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[tr.TradeID]; exists {
		return fmt.Errorf("trade %s already exists", tr.TradeID)
	}

	s.nextID++
	first.ID = s.nextID
	s.trades[tr.TradeID] = copyTrade(tr)
	s.txs[tr.TradeID] = []Transaction{first}
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, tradeID string) (Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.trades[tradeID]
	if !ok {
		return Trade{}, ErrNoTrade
	}
	return copyTrade(tr), nil
}

func (s *MemoryStore) ListTrades(_ context.Context, status TradeStatus) ([]Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := []Trade{}
	for _, tr := range s.trades {
		if status == "" || tr.Status == status {
			trades = append(trades, copyTrade(tr))
		}
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})
	return trades, nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, tradeID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Transaction{}, s.txs[tradeID]...), nil
}

func (s *MemoryStore) UpdateTrade(_ context.Context, tradeID string, fn UpdateFunc) (Trade, Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.trades[tradeID]
	if !ok {
		return Trade{}, Transaction{}, ErrNoTrade
	}

	updated, newTx, err := fn(copyTrade(tr), append([]Transaction{}, s.txs[tradeID]...))
	if err != nil {
		return Trade{}, Transaction{}, err
	}

	s.nextID++
	newTx.ID = s.nextID
	s.trades[tradeID] = copyTrade(updated)
	s.txs[tradeID] = append(s.txs[tradeID], newTx)
	return updated, newTx, nil
}

func (s *MemoryStore) ListExits(_ context.Context, since time.Time) ([]Exit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exits := []Exit{}
	for tradeID, txs := range s.txs {
		tr := s.trades[tradeID]
		for _, tx := range txs {
			if !tx.TransactionType.IsExit() || tx.CreatedAt.Before(since) {
				continue
			}
			exits = append(exits, Exit{
				TradeID:         tradeID,
				Symbol:          tr.Symbol,
				Side:            tr.Side,
				TransactionType: tx.TransactionType,
				Amount:          tx.Amount,
				Size:            tx.Size,
				RealizedPnL:     tx.RealizedPnL.Decimal,
				CreatedAt:       tx.CreatedAt,
			})
		}
	}

	sort.Slice(exits, func(i, j int) bool {
		if exits[i].Symbol != exits[j].Symbol {
			return exits[i].Symbol < exits[j].Symbol
		}
		return exits[i].CreatedAt.Before(exits[j].CreatedAt)
	})
	return exits, nil
}

func copyTrade(tr Trade) Trade {
	if tr.Legs != nil {
		tr.Legs = append([]string{}, tr.Legs...)
	}
	return tr
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)
