package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = 10 * time.Minute

// CachedStore puts a redis read-through cache in front of another Store.
// Writes go to the primary and drop the cached trade, reads try redis first.
//
// Every write bumps a per trade generation key. A reader watches that key
// across its primary read, so a fill computed from rows a write has since
// replaced is never stored.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) CreateTrade(ctx context.Context, tr Trade, first Transaction) error {
	if err := s.primary.CreateTrade(ctx, tr, first); err != nil {
		return err
	}
	s.invalidate(ctx, tr.TradeID)
	return nil
}

func (s *CachedStore) UpdateTrade(ctx context.Context, tradeID string, fn UpdateFunc) (Trade, Transaction, error) {
	s.invalidate(ctx, tradeID)
	updated, tx, err := s.primary.UpdateTrade(ctx, tradeID, fn)
	if err != nil {
		return updated, tx, err
	}

	// next read re-populates
	s.invalidate(ctx, tradeID)
	return updated, tx, nil
}

func (s *CachedStore) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	return readThrough(ctx, s, tradeID, tradeKey(tradeID), s.primary.GetTrade)
}

func (s *CachedStore) GetTransactions(ctx context.Context, tradeID string) ([]Transaction, error) {
	return readThrough(ctx, s, tradeID, transactionsKey(tradeID), s.primary.GetTransactions)
}

// not cached

func (s *CachedStore) ListTrades(ctx context.Context, status TradeStatus) ([]Trade, error) {
	return s.primary.ListTrades(ctx, status)
}

func (s *CachedStore) ListExits(ctx context.Context, since time.Time) ([]Exit, error) {
	return s.primary.ListExits(ctx, since)
}

// bump the generation and drop both cached entries
func (s *CachedStore) invalidate(ctx context.Context, tradeID string) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(tradeID))
		pipe.Expire(ctx, generationKey(tradeID), s.ttl)
		pipe.Del(ctx, tradeKey(tradeID), transactionsKey(tradeID))
		return nil
	})
	if err != nil {
		log.Printf("CachedStore.invalidate : failed for %s, %v", tradeID, err)
	}
}

func readThrough[T any](ctx context.Context, s *CachedStore, tradeID, key string, load func(context.Context, string) (T, error)) (T, error) {
	var v T
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached T
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	loaded := false
	var loadErr error
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		v, loadErr = load(ctx, tradeID)
		loaded = true
		if loadErr != nil {
			return loadErr
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}

		// aborts if a write bumped the generation since the watch
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, generationKey(tradeID))

	if !loaded {
		// redis is down, serve from the primary
		return load(ctx, tradeID)
	}
	if loadErr != nil {
		return v, loadErr
	}
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		log.Printf("CachedStore.readThrough : failed to cache %s, %v", key, err)
	}
	return v, nil
}

func tradeKey(id string) string        { return fmt.Sprintf("trade:%s", id) }
func transactionsKey(id string) string { return fmt.Sprintf("transactions:%s", id) }
func generationKey(id string) string   { return fmt.Sprintf("trade:gen:%s", id) }

var _ Store = (*CachedStore)(nil)
