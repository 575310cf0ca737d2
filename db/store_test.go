package db

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var creds map[string]string
var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	// read settings env, the postgres tests are skipped without one
	var err error
	creds, err = godotenv.Read("settings.env")
	if err != nil {
		log.Printf("no settings.env, skipping postgres tests, %v", err)
	} else {
		pool, err = GetConnPool(creds["DB_NAME"], creds["DB_USER"], creds["DB_PASS"], creds["DB_HOST"], true)
		if err != nil {
			log.Fatalf("failed to acquire pool, %v", err)
		}
		if err := CreateTables(context.Background(), pool); err != nil {
			log.Fatalf("failed to create tables, %v", err)
		}
	}

	// run tests
	testResult := m.Run()
	os.Exit(testResult)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var t0 = time.Date(2024, 9, 3, 14, 30, 0, 0, time.UTC)

func newOptionTrade(t *testing.T, id string) (Trade, Transaction) {
	t.Helper()
	exp := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)

	l, err := ledger.OpenLedger(ledger.Long, d("100"), d("2.50"), d("4"), t0)
	if err != nil {
		t.Fatalf("failed to open ledger, %v", err)
	}

	tr := Trade{
		TradeID:    id,
		Symbol:     "NVDA",
		Instrument: InstrumentOption,
		Side:       ledger.Long,
		Multiplier: d("100"),
		Strike:     decimal.NewNullDecimal(d("118")),
		Expiration: &exp,
		OptionType: "CALL",
		CreatedBy:  "tester",
		CreatedAt:  t0,
		Legs:       []string{},
	}
	tr.Sync(l)

	return tr, NewTransaction(id, l.Fills()[0], nil)
}

// the update every test applies: a trim through the ledger
func trimBy(price, size string, at time.Time) UpdateFunc {
	return func(tr Trade, txs []Transaction) (Trade, Transaction, error) {
		l, err := tr.Ledger(txs)
		if err != nil {
			return tr, Transaction{}, err
		}
		l, pnl, err := l.Trim(d(price), d(size), at)
		if err != nil {
			return tr, Transaction{}, err
		}
		tr.Sync(l)

		fills := l.Fills()
		return tr, NewTransaction(tr.TradeID, fills[len(fills)-1], &pnl), nil
	}
}

func testStore(t *testing.T, st Store) {
	ctx := context.Background()
	tr, first := newOptionTrade(t, "abc123")

	if err := st.CreateTrade(ctx, tr, first); err != nil {
		t.Fatalf("failed to create, %v", err)
	}

	got, err := st.GetTrade(ctx, "abc123")
	if err != nil {
		t.Fatalf("failed to get, %v", err)
	}
	if got.Symbol != "NVDA" || !got.AverageCost.Equal(d("2.50")) || got.Status != TradeOpen {
		t.Fatalf("unexpected trade read back, %s", got)
	}
	if got.DisplayName() != "NVDA 118C 01/17" {
		t.Fatalf("unexpected display name %s", got.DisplayName())
	}

	if _, err := st.GetTrade(ctx, "missing"); !errors.Is(err, ErrNoTrade) {
		t.Fatalf("expected ErrNoTrade, got %v", err)
	}

	updated, tx, err := st.UpdateTrade(ctx, "abc123", trimBy("3.00", "1", t0.Add(time.Minute)))
	if err != nil {
		t.Fatalf("failed to trim, %v", err)
	}
	if !updated.CurrentSize.Equal(d("3")) {
		t.Fatalf("expected size 3, got %s", updated.CurrentSize)
	}
	if tx.TransactionType != ledger.Trim || !tx.RealizedPnL.Valid || !tx.RealizedPnL.Decimal.Equal(d("50")) {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	// a rejected update writes nothing
	_, _, err = st.UpdateTrade(ctx, "abc123", trimBy("3.00", "10", t0.Add(2*time.Minute)))
	if !errors.Is(err, ledger.ErrOversizedExit) {
		t.Fatalf("expected ErrOversizedExit, got %v", err)
	}
	txs, err := st.GetTransactions(ctx, "abc123")
	if err != nil {
		t.Fatalf("failed to get transactions, %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}

	// trim the rest, which closes
	updated, tx, err = st.UpdateTrade(ctx, "abc123", trimBy("2.00", "3", t0.Add(3*time.Minute)))
	if err != nil {
		t.Fatalf("failed to trim rest, %v", err)
	}
	if updated.Status != TradeClosed || updated.ClosedAt == nil || tx.TransactionType != ledger.Close {
		t.Fatalf("expected closed trade, got %s / %s", updated, tx.TransactionType)
	}

	open, err := st.ListTrades(ctx, TradeOpen)
	if err != nil {
		t.Fatalf("failed to list, %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open trades, got %d", len(open))
	}

	exits, err := st.ListExits(ctx, t0)
	if err != nil {
		t.Fatalf("failed to list exits, %v", err)
	}
	if len(exits) != 2 {
		t.Fatalf("expected 2 exits, got %d", len(exits))
	}
	total := exits[0].RealizedPnL.Add(exits[1].RealizedPnL)
	// 50 + (2.00 - 2.50) * 3 * 100
	if !total.Equal(d("-100")) {
		t.Fatalf("expected exits to total -100, got %s", total)
	}

	// replaying what was stored reproduces the summary row
	txs, _ = st.GetTransactions(ctx, "abc123")
	l, err := updated.Ledger(txs)
	if err != nil {
		t.Fatalf("failed to replay, %v", err)
	}
	if !l.RealizedTotal().Equal(updated.RealizedPnL) {
		t.Fatalf("replayed realized %s, stored %s", l.RealizedTotal(), updated.RealizedPnL)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	if pool == nil {
		t.Skip("no db configured")
	}
	if err := TruncateTables(context.Background(), pool); err != nil {
		t.Fatalf("%v", err)
	}
	testStore(t, NewPostgresStore(pool))
}

func TestCachedStore(t *testing.T) {
	if pool == nil || creds["REDIS_URL"] == "" {
		t.Skip("no db or redis configured")
	}
	opt, err := redis.ParseURL(creds["REDIS_URL"])
	if err != nil {
		t.Fatalf("invalid REDIS_URL, %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	rdb.Del(context.Background(), tradeKey("abc123"), transactionsKey("abc123"))

	if err := TruncateTables(context.Background(), pool); err != nil {
		t.Fatalf("%v", err)
	}
	testStore(t, NewCachedStore(NewPostgresStore(pool), rdb, time.Minute))
}

// pausingStore holds the first GetTrade after it has read, until resumed
type pausingStore struct {
	Store
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	tr, err := p.Store.GetTrade(ctx, tradeID)
	p.once.Do(func() {
		close(p.read)
		<-p.resume
	})
	return tr, err
}

func TestCachedStore_StaleReadIsNotCached(t *testing.T) {
	if creds["REDIS_URL"] == "" {
		t.Skip("no redis configured")
	}
	opt, err := redis.ParseURL(creds["REDIS_URL"])
	if err != nil {
		t.Fatalf("invalid REDIS_URL, %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	rdb.Del(ctx, tradeKey("stale1"), transactionsKey("stale1"), generationKey("stale1"))

	mem := NewMemoryStore()
	tr, first := newOptionTrade(t, "stale1")
	if err := mem.CreateTrade(ctx, tr, first); err != nil {
		t.Fatalf("failed to create, %v", err)
	}

	primary := &pausingStore{Store: mem, read: make(chan struct{}), resume: make(chan struct{})}
	st := NewCachedStore(primary, rdb, time.Minute)

	// a reader loads size 4 and stalls before it can fill the cache
	done := make(chan Trade)
	go func() {
		got, _ := st.GetTrade(ctx, "stale1")
		done <- got
	}()
	<-primary.read

	if _, _, err := st.UpdateTrade(ctx, "stale1", trimBy("3.00", "1", t0.Add(time.Minute))); err != nil {
		t.Fatalf("failed to trim, %v", err)
	}
	close(primary.resume)
	if got := <-done; !got.CurrentSize.Equal(d("4")) {
		t.Fatalf("expected the stalled reader to see size 4, got %s", got.CurrentSize)
	}

	got, err := st.GetTrade(ctx, "stale1")
	if err != nil {
		t.Fatalf("failed to get, %v", err)
	}
	if !got.CurrentSize.Equal(d("3")) {
		t.Fatalf("expected size 3 after the trim, the stale read was cached: %s", got)
	}
}

func TestMemoryStore_ConcurrentTrims(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	tr, first := newOptionTrade(t, "conc")
	if err := st.CreateTrade(ctx, tr, first); err != nil {
		t.Fatalf("failed to create, %v", err)
	}

	// 4 contracts, 6 trims of 1: exactly 4 succeed
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// same timestamp keeps the order check out of the race
			_, _, err := st.UpdateTrade(ctx, "conc", trimBy("3.00", "1", t0.Add(time.Minute)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 4 {
		t.Fatalf("expected 4 trims to succeed, got %d", succeeded)
	}
	got, _ := st.GetTrade(ctx, "conc")
	if got.Status != TradeClosed || !got.CurrentSize.IsZero() {
		t.Fatalf("expected closed with nothing remaining, got %s", got)
	}
}

func TestTradeStrategy(t *testing.T) {
	tr := Trade{
		TradeID:    "strat1",
		Symbol:     "SPY 100/105 call vertical",
		Instrument: InstrumentStrategy,
		Side:       ledger.Long,
		Multiplier: d("100"),
		Legs:       []string{"SPY 100C", "SPY 105C"},
	}
	txs := []Transaction{
		{TransactionType: ledger.Open, Amount: d("2.00"), Size: d("2"), CreatedAt: t0},
		{TransactionType: ledger.Close, Amount: d("3.00"), Size: d("2"), CreatedAt: t0.Add(time.Hour)},
	}

	s, err := tr.Strategy(txs)
	if err != nil {
		t.Fatalf("failed to replay strategy, %v", err)
	}
	if !s.IsClosed() || !s.Net().RealizedTotal().Equal(d("200")) {
		t.Fatalf("unexpected strategy %s", s)
	}

	tr.Instrument = InstrumentOption
	if _, err := tr.Strategy(txs); err == nil {
		t.Fatalf("expected error replaying an option as a strategy")
	}
}

func TestParseTradeStatus(t *testing.T) {
	if s, err := ParseTradeStatus("OPEN"); err != nil || s != TradeOpen {
		t.Fatalf("expected open, got %s %v", s, err)
	}
	if _, err := ParseTradeStatus("pending"); err == nil {
		t.Fatalf("expected error for pending")
	}
}
