package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	cls "github.com/lightspeed-trading/tradebook/classes"
	"github.com/lightspeed-trading/tradebook/db"
	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/lightspeed-trading/tradebook/marketdata"
	"github.com/lightspeed-trading/tradebook/metrics"
	"github.com/shopspring/decimal"
)

var ErrWrongInstrument = errors.New("wrong command for this kind of trade")
var ErrNoQuote = errors.New("no quote available")

// source of last traded prices, satisfied by *marketdata.Client
type quoter interface {
	LastTrade(ctx context.Context, ticker string) (marketdata.LastTrade, error)
	Aggregates(ctx context.Context, ticker string, from time.Time, to time.Time) ([]marketdata.Bar, error)
}

// tradeBook is the workflow every command goes through: load the trade
// under lock, apply the ledger operation, persist, then announce.
type tradeBook struct {
	store    db.Store
	locks    *cls.TradeLocks
	quotes   quoter // nil disables automatic marks
	alert    func(cls.TradeUpdate)
	activity *cls.ActivityLog
	now      func() time.Time
}

func newTradeBook(store db.Store, quotes quoter, alert func(cls.TradeUpdate)) *tradeBook {
	if alert == nil {
		alert = func(cls.TradeUpdate) {}
	}
	return &tradeBook{
		store:    store,
		locks:    cls.NewTradeLocks(),
		quotes:   quotes,
		alert:    alert,
		activity: &cls.ActivityLog{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type OpenTradeReq struct {
	Symbol     string
	Instrument db.Instrument // stock or option
	Side       ledger.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	Strike     decimal.NullDecimal
	Expiration *time.Time
	OptionType string
	Note       string
	By         string
}

type OpenStrategyReq struct {
	Name    string
	Side    ledger.Side // LONG for a debit, SHORT for a credit
	NetCost decimal.Decimal
	Size    decimal.Decimal
	Legs    []string
	Note    string
	By      string
}

// 8 hex chars is plenty for a journal
func newTradeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func multiplierFor(instrument db.Instrument) decimal.Decimal {
	if instrument == db.InstrumentStock {
		return decimal.NewFromInt(ledger.SharesMultiplier)
	}
	return decimal.NewFromInt(ledger.OptionsMultiplier)
}

func (tb *tradeBook) OpenTrade(ctx context.Context, req OpenTradeReq) (db.Trade, cls.TradeUpdate, error) {
	if req.Symbol == "" {
		return db.Trade{}, cls.TradeUpdate{}, fmt.Errorf("%w: symbol is required", ledger.ErrInvalidFill)
	}
	switch req.Instrument {
	case db.InstrumentStock:
	case db.InstrumentOption:
		if !req.Strike.Valid || req.Expiration == nil || req.OptionType == "" {
			return db.Trade{}, cls.TradeUpdate{}, fmt.Errorf("%w: options need a strike, expiration and type", ledger.ErrInvalidFill)
		}
	default:
		return db.Trade{}, cls.TradeUpdate{}, fmt.Errorf("%w: cannot open a %q with this command", ErrWrongInstrument, req.Instrument)
	}

	tr := db.Trade{
		TradeID:    newTradeID(),
		Symbol:     strings.ToUpper(req.Symbol),
		Instrument: req.Instrument,
		Side:       req.Side,
		Multiplier: multiplierFor(req.Instrument),
		Strike:     req.Strike,
		Expiration: req.Expiration,
		OptionType: strings.ToUpper(req.OptionType),
		Legs:       []string{},
		CreatedBy:  req.By,
	}
	return tb.open(ctx, tr, req.Price, req.Size, req.Note)
}

func (tb *tradeBook) OpenStrategy(ctx context.Context, req OpenStrategyReq) (db.Trade, cls.TradeUpdate, error) {
	if req.Name == "" {
		return db.Trade{}, cls.TradeUpdate{}, fmt.Errorf("%w: strategy name is required", ledger.ErrInvalidFill)
	}

	legs := req.Legs
	if legs == nil {
		legs = []string{}
	}
	tr := db.Trade{
		TradeID:    newTradeID(),
		Symbol:     req.Name,
		Instrument: db.InstrumentStrategy,
		Side:       req.Side,
		Multiplier: decimal.NewFromInt(ledger.OptionsMultiplier),
		Legs:       legs,
		CreatedBy:  req.By,
	}
	return tb.open(ctx, tr, req.NetCost, req.Size, req.Note)
}

func (tb *tradeBook) open(ctx context.Context, tr db.Trade, price, size decimal.Decimal, note string) (db.Trade, cls.TradeUpdate, error) {
	at := tb.now()

	var l ledger.Ledger
	var err error
	if tr.IsStrategy() {
		var s ledger.Strategy
		s, err = ledger.OpenBlended(tr.Symbol, tr.Side, tr.Multiplier, price, size, at, tr.Legs...)
		l = s.Net()
	} else {
		l, err = ledger.OpenLedger(tr.Side, tr.Multiplier, price, size, at)
	}
	if err != nil {
		metrics.FillRejections.WithLabelValues(rejectReason(err)).Inc()
		return db.Trade{}, cls.TradeUpdate{}, err
	}

	tr.CreatedAt = at
	tr.Sync(l)
	first := l.Fills()[0]

	if err := tb.store.CreateTrade(ctx, tr, db.NewTransaction(tr.TradeID, first, nil)); err != nil {
		return db.Trade{}, cls.TradeUpdate{}, fmt.Errorf("failed to store trade, %w", err)
	}

	upd := newTradeUpdate(tr, first, decimal.Zero, nil, note, tr.CreatedBy)
	tb.record(upd)
	return tr, upd, nil
}

// a ledger operation against a loaded trade. before is the state the
// operation was applied to.
type fillOp func(tr db.Trade, txs []db.Transaction) (before ledger.Ledger, after ledger.Ledger, pnl *ledger.RealizedPnL, err error)

func (tb *tradeBook) apply(ctx context.Context, tradeID string, strategy bool, by string, op fillOp) (db.Trade, cls.TradeUpdate, error) {
	tb.locks.Lock(tradeID)
	defer tb.locks.Unlock(tradeID)

	var upd cls.TradeUpdate
	tr, _, err := tb.store.UpdateTrade(ctx, tradeID, func(tr db.Trade, txs []db.Transaction) (db.Trade, db.Transaction, error) {
		if tr.IsStrategy() != strategy {
			return tr, db.Transaction{}, fmt.Errorf("%w: %s is a %s", ErrWrongInstrument, tradeID, tr.Instrument)
		}

		before, after, pnl, err := op(tr, txs)
		if err != nil {
			return tr, db.Transaction{}, err
		}

		fills := after.Fills()
		last := fills[len(fills)-1]
		tr.Sync(after)

		upd = newTradeUpdate(tr, last, before.RemainingSize(), pnl, "", by)
		return tr, db.NewTransaction(tr.TradeID, last, pnl), nil
	})
	if err != nil {
		metrics.FillRejections.WithLabelValues(rejectReason(err)).Inc()
		return db.Trade{}, cls.TradeUpdate{}, err
	}

	tb.record(upd)
	return tr, upd, nil
}

func (tb *tradeBook) AddToTrade(ctx context.Context, tradeID string, price, size decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, false, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		l, err := tr.Ledger(txs)
		if err != nil {
			return l, l, nil, err
		}
		next, err := l.Add(price, size, tb.now())
		return l, next, nil, err
	})
}

func (tb *tradeBook) TrimTrade(ctx context.Context, tradeID string, price, size decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, false, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		l, err := tr.Ledger(txs)
		if err != nil {
			return l, l, nil, err
		}
		next, pnl, err := l.Trim(price, size, tb.now())
		return l, next, &pnl, err
	})
}

func (tb *tradeBook) CloseTrade(ctx context.Context, tradeID string, price decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, false, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		l, err := tr.Ledger(txs)
		if err != nil {
			return l, l, nil, err
		}
		next, pnl, err := l.Close(price, tb.now())
		return l, next, &pnl, err
	})
}

func (tb *tradeBook) AddToStrategy(ctx context.Context, tradeID string, netCost, size decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, true, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		s, err := tr.Strategy(txs)
		if err != nil {
			return s.Net(), s.Net(), nil, err
		}
		next, err := s.Add(netCost, size, tb.now())
		return s.Net(), next.Net(), nil, err
	})
}

func (tb *tradeBook) TrimStrategy(ctx context.Context, tradeID string, netCost, size decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, true, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		s, err := tr.Strategy(txs)
		if err != nil {
			return s.Net(), s.Net(), nil, err
		}
		next, exit, err := s.Exit(netCost, size, tb.now())
		return s.Net(), next.Net(), &exit.Net, err
	})
}

func (tb *tradeBook) CloseStrategy(ctx context.Context, tradeID string, netCost decimal.Decimal, by string) (db.Trade, cls.TradeUpdate, error) {
	return tb.apply(ctx, tradeID, true, by, func(tr db.Trade, txs []db.Transaction) (ledger.Ledger, ledger.Ledger, *ledger.RealizedPnL, error) {
		s, err := tr.Strategy(txs)
		if err != nil {
			return s.Net(), s.Net(), nil, err
		}
		next, exit, err := s.Close(netCost, tb.now())
		return s.Net(), next.Net(), &exit.Net, err
	})
}

type TradeDetail struct {
	Trade        db.Trade             `json:"trade"`
	Transactions []db.Transaction     `json:"transactions"`
	Exits        []ledger.RealizedPnL `json:"exits"`
}

func (tb *tradeBook) GetTrade(ctx context.Context, tradeID string) (TradeDetail, error) {
	tr, err := tb.store.GetTrade(ctx, tradeID)
	if err != nil {
		return TradeDetail{}, err
	}
	txs, err := tb.store.GetTransactions(ctx, tradeID)
	if err != nil {
		return TradeDetail{}, err
	}

	l, err := tr.Ledger(txs)
	if err != nil {
		return TradeDetail{}, err
	}
	// the fills are the source of truth for the summary row
	tr.Sync(l)

	exits := l.Exits()
	if exits == nil {
		exits = []ledger.RealizedPnL{}
	}
	return TradeDetail{Trade: tr, Transactions: txs, Exits: exits}, nil
}

func (tb *tradeBook) ListTrades(ctx context.Context, status db.TradeStatus) ([]db.Trade, error) {
	trades, err := tb.store.ListTrades(ctx, status)
	if err != nil {
		return nil, err
	}
	if status == db.TradeOpen {
		metrics.OpenTrades.Set(float64(len(trades)))
	}
	return trades, nil
}

type TradeMark struct {
	Trade      db.Trade           `json:"trade"`
	Mark       decimal.Decimal    `json:"mark"`
	Source     string             `json:"source"` // "manual" or the ticker quoted
	Unrealized ledger.RealizedPnL `json:"unrealized"`
}

// mark-to-market the remaining size of a trade. Without a manual mark the
// last traded price is fetched, which strategies don't have.
func (tb *tradeBook) MarkTrade(ctx context.Context, tradeID string, mark decimal.NullDecimal) (TradeMark, error) {
	tr, err := tb.store.GetTrade(ctx, tradeID)
	if err != nil {
		return TradeMark{}, err
	}
	txs, err := tb.store.GetTransactions(ctx, tradeID)
	if err != nil {
		return TradeMark{}, err
	}
	l, err := tr.Ledger(txs)
	if err != nil {
		return TradeMark{}, err
	}
	// a cached summary row can lag the fills
	tr.Sync(l)
	if l.IsClosed() {
		return TradeMark{}, fmt.Errorf("%s, %w", tradeID, ledger.ErrClosedPosition)
	}

	source := "manual"
	if !mark.Valid {
		ticker, err := tickerFor(tr)
		if err != nil {
			return TradeMark{}, err
		}
		if tb.quotes == nil {
			return TradeMark{}, fmt.Errorf("%w: no market data client", ErrNoQuote)
		}

		lt, err := tb.quotes.LastTrade(ctx, ticker)
		if err != nil {
			return TradeMark{}, fmt.Errorf("%w: %v", ErrNoQuote, err)
		}
		mark = decimal.NewNullDecimal(lt.Price)
		source = ticker
	}
	if !mark.Decimal.IsPositive() {
		return TradeMark{}, fmt.Errorf("%w: mark must be > 0, got %s", ledger.ErrInvalidFill, mark.Decimal)
	}

	return TradeMark{
		Trade:      tr,
		Mark:       mark.Decimal,
		Source:     source,
		Unrealized: l.Unrealized(mark.Decimal),
	}, nil
}

type QuoteSummary struct {
	Ticker string    `json:"ticker"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	marketdata.Summary
}

// daily close statistics for ticker between from and to
func (tb *tradeBook) SummarizeQuotes(ctx context.Context, ticker string, from, to time.Time) (QuoteSummary, error) {
	if tb.quotes == nil {
		return QuoteSummary{}, fmt.Errorf("%w: no market data client", ErrNoQuote)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	bars, err := tb.quotes.Aggregates(ctx, ticker, from, to)
	if err != nil {
		return QuoteSummary{}, fmt.Errorf("%w: %v", ErrNoQuote, err)
	}
	return QuoteSummary{
		Ticker:  ticker,
		From:    from,
		To:      to,
		Summary: marketdata.Summarize(bars),
	}, nil
}

func tickerFor(tr db.Trade) (string, error) {
	switch tr.Instrument {
	case db.InstrumentStock:
		return tr.Symbol, nil
	case db.InstrumentOption:
		if tr.Expiration == nil || !tr.Strike.Valid {
			return "", fmt.Errorf("%w: %s has no contract details", ErrNoQuote, tr.TradeID)
		}
		return marketdata.OptionTicker(tr.Symbol, *tr.Expiration, tr.OptionType, tr.Strike.Decimal)
	}
	return "", fmt.Errorf("%w: strategies need a manual mark", ErrNoQuote)
}

func newTradeUpdate(tr db.Trade, f ledger.Fill, oldSize decimal.Decimal, pnl *ledger.RealizedPnL, note string, by string) cls.TradeUpdate {
	return cls.TradeUpdate{
		TradeID:     tr.TradeID,
		Type:        f.Kind,
		Symbol:      tr.DisplayName(),
		Side:        tr.Side,
		Price:       f.Price,
		Size:        f.Size,
		OldSize:     oldSize,
		NewSize:     tr.CurrentSize,
		AverageCost: tr.AverageCost,
		Pnl:         pnl,
		Legs:        tr.Legs,
		Note:        note,
		By:          by,
	}
}

// metrics, activity log and alert for an applied fill
func (tb *tradeBook) record(upd cls.TradeUpdate) {
	metrics.FillsTotal.WithLabelValues(string(upd.Type)).Inc()
	if upd.Pnl != nil {
		metrics.RealizedPnL.Add(upd.Pnl.TotalPnL.InexactFloat64())
	}

	log.Printf("%s : %s", upd.TradeID, upd)
	tb.activity.Logf("%s %s %s %s @ %s by %s", upd.TradeID, upd.Type, upd.Symbol, cls.FmtDecimal(upd.Size), cls.FmtDecimal(upd.Price), upd.By)

	tb.alert(upd)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrOversizedExit):
		return "oversized_exit"
	case errors.Is(err, ledger.ErrClosedPosition):
		return "closed_position"
	case errors.Is(err, ledger.ErrInvalidFill):
		return "invalid_fill"
	case errors.Is(err, db.ErrNoTrade):
		return "no_trade"
	case errors.Is(err, ErrWrongInstrument):
		return "wrong_instrument"
	}
	return "other"
}
