package cls

import (
	"fmt"
	"strings"

	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/shopspring/decimal"
)

type Decimal = decimal.Decimal

// a fill that has been applied to a trade, with everything needed to
// announce it. Pnl is nil for entries.
type TradeUpdate struct {
	TradeID     string              `json:"tradeID"`
	Type        ledger.FillKind     `json:"type"`
	Symbol      string              `json:"symbol"`
	Side        ledger.Side         `json:"side"`
	Price       Decimal             `json:"price"`
	Size        Decimal             `json:"size"`
	OldSize     Decimal             `json:"oldSize"`
	NewSize     Decimal             `json:"newSize"`
	AverageCost Decimal             `json:"averageCost"`
	Pnl         *ledger.RealizedPnL `json:"pnl,omitempty"`
	Legs        []string            `json:"legs,omitempty"`
	Note        string              `json:"note,omitempty"`
	By          string              `json:"by"`
}

var (
	OpenPing     = "Position Opened"
	ClosePing    = "Position Closed"
	IncreasePing = "Position Added To"
	DecreasePing = "Position Trimmed"
)

// returns with LONG or SHORT in front of the symbol, and it has double
// asterisks around the long / short to embolden it in discord
func (upd *TradeUpdate) FmtCoin() string {
	switch upd.Side {
	case ledger.Long:
		return "**LONG** " + upd.Symbol
	case ledger.Short:
		return "**SHORT** " + upd.Symbol
	default:
		return upd.Symbol
	}
}

// get the title and colour for a discord ping
func (upd *TradeUpdate) FmtTitleColour() (string, int) {
	var title string
	var colour int

	switch upd.Type {
	case ledger.Open:
		title = OpenPing
		colour = 65280 // green
	case ledger.Close:
		title = ClosePing
		colour = 16711680 // red
	case ledger.Add:
		title = IncreasePing
		colour = 16776960 // yellow
	case ledger.Trim:
		title = DecreasePing
		colour = 16753920 // orange
	}

	return title, colour
}

func (upd *TradeUpdate) FmtAmount() string {
	switch upd.Type {
	case ledger.Open:
		return FmtDecimal(upd.Size)
	case ledger.Close:
		return FmtDecimal(upd.Size)
	case ledger.Add:
		return fmt.Sprintf("%s (added to %s)", FmtDecimal(upd.Size), FmtDecimal(upd.OldSize))
	case ledger.Trim:
		return fmt.Sprintf("%s (of %s)", FmtDecimal(upd.Size), FmtDecimal(upd.OldSize))
	}
	return FmtDecimal(upd.Size)
}

// format a pnl for a discord embed, eg "+ $200.00 (40.00%)"
func (upd *TradeUpdate) FmtPnl() string {
	if upd.Pnl == nil {
		return ""
	}

	value := upd.Pnl.TotalPnL.StringFixed(2)
	pct := upd.Pnl.PercentString()

	if upd.Pnl.IsLoss() {
		// the \ stops discord rendering "- ..." as a bullet point
		return fmt.Sprintf("\\- $%s (%s)", strings.TrimPrefix(value, "-"), pct)
	}
	return fmt.Sprintf("+ $%s (%s)", value, pct)
}

// attributes for the alert embed
func (upd *TradeUpdate) NotifAttrs() []NotifAttr {
	attrs := []NotifAttr{
		{Name: "Trade", Value: upd.TradeID},
		{Name: "Price", Value: FmtDecimal(upd.Price)},
		{Name: "Size", Value: upd.FmtAmount()},
		{Name: "Average Cost", Value: FmtDecimal(upd.AverageCost)},
	}
	if upd.Pnl != nil {
		attrs = append(attrs, NotifAttr{Name: "PnL", Value: upd.FmtPnl()})
	}
	if len(upd.Legs) > 0 {
		attrs = append(attrs, NotifAttr{Name: "Legs", Value: strings.Join(upd.Legs, ", ")})
	}
	if upd.Note != "" {
		attrs = append(attrs, NotifAttr{Name: "Note", Value: upd.Note})
	}
	return attrs
}

func (u TradeUpdate) String() string {
	switch u.Type {
	case ledger.Open, ledger.Add:
		return fmt.Sprintf(
			"TradeUpdate{%s %s %s %s, Price: %s, Size: %s, NewSize: %s, Avg: %s}",
			u.TradeID, u.Type, u.Side, u.Symbol, u.Price, u.Size, u.NewSize, u.AverageCost,
		)
	default:
		pnl := "nil"
		if u.Pnl != nil {
			pnl = u.Pnl.TotalPnL.String()
		}
		return fmt.Sprintf(
			"TradeUpdate{%s %s %s %s, Price: %s, Size: %s, OldSize: %s, NewSize: %s, Avg: %s, Pnl: %s}",
			u.TradeID, u.Type, u.Side, u.Symbol, u.Price, u.Size, u.OldSize, u.NewSize, u.AverageCost, pnl,
		)
	}
}

// FmtDecimal formats a decimal to remove unnecessary trailing zeros
func FmtDecimal(d Decimal) string {
	str := d.StringFixed(8)

	str = strings.TrimRight(str, "0")
	str = strings.TrimSuffix(str, ".")

	return str
}
