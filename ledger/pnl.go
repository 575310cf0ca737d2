package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// RealizedPnL is the profit or loss locked in by one exit fill. Percent is
// invalid when the average entry cost is zero.
type RealizedPnL struct {
	Side             Side
	AverageEntryCost decimal.Decimal
	ExitPrice        decimal.Decimal
	ExitSize         decimal.Decimal
	Multiplier       decimal.Decimal
	UnitPnL          decimal.Decimal
	TotalPnL         decimal.Decimal
	Percent          decimal.NullDecimal
}

// ComputeExitPnL works out the realized P&L of exiting exitSize units at
// exitPrice from a position with the given average entry cost. Shorts
// profit when the exit price is below the entry.
func ComputeExitPnL(
	side Side,
	averageEntryCost decimal.Decimal,
	exitPrice decimal.Decimal,
	exitSize decimal.Decimal,
	multiplier decimal.Decimal,
) RealizedPnL {
	unit := exitPrice.Sub(averageEntryCost)
	if side == Short {
		unit = unit.Neg()
	}

	pnl := RealizedPnL{
		Side:             side,
		AverageEntryCost: averageEntryCost,
		ExitPrice:        exitPrice,
		ExitSize:         exitSize,
		Multiplier:       multiplier,
		UnitPnL:          unit,
		TotalPnL:         unit.Mul(exitSize).Mul(multiplier),
	}

	if !averageEntryCost.IsZero() {
		pnl.Percent = decimal.NewNullDecimal(unit.Div(averageEntryCost).Mul(oneHundred))
	}

	return pnl
}

// PercentString renders the percent to 2dp, or "n/a" when undefined.
func (p RealizedPnL) PercentString() string {
	if !p.Percent.Valid {
		return "n/a"
	}
	return p.Percent.Decimal.StringFixed(2) + "%"
}

func (p RealizedPnL) IsLoss() bool {
	return p.TotalPnL.IsNegative()
}

func (p RealizedPnL) String() string {
	return fmt.Sprintf(
		"RealizedPnL{%s, Entry: %s, Exit: %s, Size: %s, Unit: %s, Total: %s, Percent: %s}",
		p.Side, p.AverageEntryCost, p.ExitPrice, p.ExitSize,
		p.UnitPnL, p.TotalPnL, p.PercentString(),
	)
}
