package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/shopspring/decimal"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

func ParseTradeStatus(s string) (TradeStatus, error) {
	switch TradeStatus(strings.ToLower(s)) {
	case TradeOpen:
		return TradeOpen, nil
	case TradeClosed:
		return TradeClosed, nil
	}
	return "", fmt.Errorf("invalid TradeStatus value %s", s)
}

type Instrument string

const (
	InstrumentStock    Instrument = "stock"
	InstrumentOption   Instrument = "option"
	InstrumentStrategy Instrument = "strategy"
)

// a row of the trades table. AverageCost, CurrentSize, RealizedPnL and
// Status are a summary of the transactions table, rewritten on every fill.
type Trade struct {
	TradeID     string              `json:"tradeID"`
	Symbol      string              `json:"symbol"`
	Instrument  Instrument          `json:"instrument"`
	Side        ledger.Side         `json:"side"`
	Status      TradeStatus         `json:"status"`
	Multiplier  decimal.Decimal     `json:"multiplier"`
	Strike      decimal.NullDecimal `json:"strike"`
	Expiration  *time.Time          `json:"expiration,omitempty"`
	OptionType  string              `json:"optionType,omitempty"` // CALL, PUT or ""
	Legs        []string            `json:"legs,omitempty"`       // strategies only
	AverageCost decimal.Decimal     `json:"averageCost"`
	CurrentSize decimal.Decimal     `json:"currentSize"`
	RealizedPnL decimal.Decimal     `json:"realizedPnl"`
	CreatedBy   string              `json:"createdBy"`
	CreatedAt   time.Time           `json:"createdAt"`
	ClosedAt    *time.Time          `json:"closedAt,omitempty"`
}

// a row of the transactions table. RealizedPnL is only set on exits.
type Transaction struct {
	ID              int64               `json:"id"`
	TradeID         string              `json:"tradeID"`
	TransactionType ledger.FillKind     `json:"transactionType"`
	Amount          decimal.Decimal     `json:"amount"`
	Size            decimal.Decimal     `json:"size"`
	RealizedPnL     decimal.NullDecimal `json:"realizedPnl"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// an exit transaction joined with the trade it belongs to, used by the
// exporter
type Exit struct {
	TradeID         string
	Symbol          string
	Side            ledger.Side
	TransactionType ledger.FillKind
	Amount          decimal.Decimal
	Size            decimal.Decimal
	RealizedPnL     decimal.Decimal
	CreatedAt       time.Time
}

func (tx Transaction) Fill() ledger.Fill {
	return ledger.Fill{
		Kind:      tx.TransactionType,
		Price:     tx.Amount,
		Size:      tx.Size,
		Timestamp: tx.CreatedAt,
	}
}

// new transaction row for a fill. pnl may be nil for entries.
func NewTransaction(tradeID string, f ledger.Fill, pnl *ledger.RealizedPnL) Transaction {
	tx := Transaction{
		TradeID:         tradeID,
		TransactionType: f.Kind,
		Amount:          f.Price,
		Size:            f.Size,
		CreatedAt:       f.Timestamp,
	}
	if pnl != nil {
		tx.RealizedPnL = decimal.NewNullDecimal(pnl.TotalPnL)
	}
	return tx
}

func (tr Trade) IsStrategy() bool {
	return tr.Instrument == InstrumentStrategy
}

// replay a trade's transactions into a ledger
func (tr Trade) Ledger(txs []Transaction) (ledger.Ledger, error) {
	fills := make([]ledger.Fill, len(txs))
	for i, tx := range txs {
		fills[i] = tx.Fill()
	}

	l, err := ledger.Replay(tr.Side, tr.Multiplier, fills)
	if err != nil {
		return ledger.Ledger{}, fmt.Errorf("%s : failed to replay %d transactions, %w", tr.TradeID, len(txs), err)
	}
	return l, nil
}

// replay a strategy trade. only the blended net cost is stored, so the
// result never tracks legs.
func (tr Trade) Strategy(txs []Transaction) (ledger.Strategy, error) {
	if !tr.IsStrategy() {
		return ledger.Strategy{}, fmt.Errorf("%s : trade is a %s, not a strategy", tr.TradeID, tr.Instrument)
	}

	fills := make([]ledger.Fill, len(txs))
	for i, tx := range txs {
		fills[i] = tx.Fill()
	}

	s, err := ledger.ReplayBlended(tr.Symbol, tr.Side, tr.Multiplier, fills, tr.Legs...)
	if err != nil {
		return ledger.Strategy{}, fmt.Errorf("%s : failed to replay strategy, %w", tr.TradeID, err)
	}
	return s, nil
}

// copy the ledger aggregates onto the summary columns
func (tr *Trade) Sync(l ledger.Ledger) {
	tr.AverageCost = l.AverageEntryCost()
	tr.CurrentSize = l.RemainingSize()
	tr.RealizedPnL = l.RealizedTotal()

	tr.Status = TradeOpen
	tr.ClosedAt = nil
	if closedAt, ok := l.ClosedAt(); ok {
		tr.Status = TradeClosed
		tr.ClosedAt = &closedAt
	}
}

// human readable contract name, eg "NVDA 118C 09/20"
func (tr Trade) DisplayName() string {
	if tr.Instrument != InstrumentOption {
		return tr.Symbol
	}

	name := tr.Symbol
	if tr.Strike.Valid {
		name += " " + tr.Strike.Decimal.String()
		if tr.OptionType != "" {
			name += tr.OptionType[:1]
		}
	}
	if tr.Expiration != nil {
		name += " " + tr.Expiration.Format("01/02")
	}
	return name
}

func (tr Trade) String() string {
	return fmt.Sprintf(
		"TradeID: %s, Symbol: %s, Instrument: %s, Side: %s, Status: %s, Multiplier: %s, AverageCost: %s, CurrentSize: %s, RealizedPnL: %s",
		tr.TradeID, tr.Symbol, tr.Instrument, tr.Side, tr.Status, tr.Multiplier,
		tr.AverageCost, tr.CurrentSize, tr.RealizedPnL,
	)
}
