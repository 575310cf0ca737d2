package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LegSpec describes one instrument of a multi-leg strategy at entry. Weight
// is +n for a bought leg and -n for a sold leg (n > 1 for ratio spreads),
// Price is the per-contract fill price of that leg.
type LegSpec struct {
	Name   string
	Price  decimal.Decimal
	Weight int
}

// Leg is a tracked leg of a strategy. Its ledger size is always the
// strategy size times |Weight|.
type Leg struct {
	Name   string
	Weight int
	Ledger Ledger
}

// StrategyExit is the result of exiting some units of a strategy. Legs is
// empty for blended strategies.
type StrategyExit struct {
	Net  RealizedPnL
	Legs []RealizedPnL
}

// Strategy is a multi-leg options position. The net ledger tracks the
// strategy as one synthetic instrument priced at its blended net cost; that
// is the model the journal persists. Per-leg ledgers are only kept when the
// strategy was opened with a price for every leg.
type Strategy struct {
	name     string
	legNames []string
	net      Ledger
	legs     []Leg
}

// OpenStrategy opens a strategy with per-leg tracking. The net cost per
// unit is sum(price * weight): a debit opens a LONG synthetic ledger, a
// credit a SHORT one priced at the absolute credit.
func OpenStrategy(
	name string,
	multiplier decimal.Decimal,
	legs []LegSpec,
	size decimal.Decimal,
	at time.Time,
) (Strategy, error) {
	if len(legs) == 0 {
		return Strategy{}, fmt.Errorf("%w: strategy needs at least one leg", ErrInvalidFill)
	}

	net := decimal.Zero
	tracked := make([]Leg, 0, len(legs))
	names := make([]string, 0, len(legs))

	for _, spec := range legs {
		if spec.Weight == 0 {
			return Strategy{}, fmt.Errorf("%w: leg %s has zero weight", ErrInvalidFill, spec.Name)
		}

		side := Long
		if spec.Weight < 0 {
			side = Short
		}
		legSize := size.Mul(absWeight(spec.Weight))

		l, err := OpenLedger(side, multiplier, spec.Price, legSize, at)
		if err != nil {
			return Strategy{}, fmt.Errorf("leg %s, %w", spec.Name, err)
		}

		net = net.Add(spec.Price.Mul(decimal.NewFromInt(int64(spec.Weight))))
		tracked = append(tracked, Leg{Name: spec.Name, Weight: spec.Weight, Ledger: l})
		names = append(names, spec.Name)
	}

	if net.IsZero() {
		return Strategy{}, fmt.Errorf("%w: strategy has zero net cost", ErrInvalidFill)
	}

	side := Long
	if net.IsNegative() {
		side = Short
	}

	synthetic, err := OpenLedger(side, multiplier, net.Abs(), size, at)
	if err != nil {
		return Strategy{}, err
	}

	return Strategy{name: name, legNames: names, net: synthetic, legs: tracked}, nil
}

// OpenBlended opens a strategy known only by its blended net cost. This is
// what the discord os_* commands record.
func OpenBlended(
	name string,
	side Side,
	multiplier decimal.Decimal,
	netCost decimal.Decimal,
	size decimal.Decimal,
	at time.Time,
	legNames ...string,
) (Strategy, error) {
	l, err := OpenLedger(side, multiplier, netCost, size, at)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{name: name, legNames: legNames, net: l}, nil
}

// ReplayBlended rebuilds a blended strategy from its stored net fills.
func ReplayBlended(name string, side Side, multiplier decimal.Decimal, fills []Fill, legNames ...string) (Strategy, error) {
	l, err := Replay(side, multiplier, fills)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{name: name, legNames: legNames, net: l}, nil
}

// Add buys size more units at netCost per unit. With per-leg tracking,
// each leg is filled at its current average scaled by netCost / net
// average, which keeps sum(leg average * weight) equal to the signed net
// average.
func (s Strategy) Add(netCost decimal.Decimal, size decimal.Decimal, at time.Time) (Strategy, error) {
	if s.net.IsZero() {
		return s, fmt.Errorf("%w: strategy was never opened", ErrInvalidFill)
	}

	net, err := s.net.Add(netCost, size, at)
	if err != nil {
		return s, err
	}

	legs, err := s.mapLegs(netCost, size, func(leg Leg, price decimal.Decimal, legSize decimal.Decimal) (Ledger, error) {
		return leg.Ledger.Add(price, legSize, at)
	})
	if err != nil {
		return s, err
	}

	return Strategy{name: s.name, legNames: s.legNames, net: net, legs: legs}, nil
}

// Exit sells size units at netCost per unit. Exiting the whole remaining
// size closes the strategy and every leg.
func (s Strategy) Exit(netCost decimal.Decimal, size decimal.Decimal, at time.Time) (Strategy, StrategyExit, error) {
	if s.net.IsZero() {
		return s, StrategyExit{}, fmt.Errorf("%w: strategy was never opened", ErrInvalidFill)
	}

	net, netPnl, err := s.net.Trim(netCost, size, at)
	if err != nil {
		return s, StrategyExit{}, err
	}

	legPnls := []RealizedPnL{}
	legs, err := s.mapLegs(netCost, size, func(leg Leg, price decimal.Decimal, legSize decimal.Decimal) (Ledger, error) {
		l, pnl, err := leg.Ledger.Trim(price, legSize, at)
		if err == nil {
			legPnls = append(legPnls, pnl)
		}
		return l, err
	})
	if err != nil {
		return s, StrategyExit{}, err
	}

	next := Strategy{name: s.name, legNames: s.legNames, net: net, legs: legs}
	return next, StrategyExit{Net: netPnl, Legs: legPnls}, nil
}

// Close exits everything that remains.
func (s Strategy) Close(netCost decimal.Decimal, at time.Time) (Strategy, StrategyExit, error) {
	if s.net.IsClosed() {
		return s, StrategyExit{}, ErrClosedPosition
	}
	return s.Exit(netCost, s.net.RemainingSize(), at)
}

// applies fn to every tracked leg with that leg's share of a net fill
func (s Strategy) mapLegs(
	netCost decimal.Decimal,
	size decimal.Decimal,
	fn func(leg Leg, price decimal.Decimal, legSize decimal.Decimal) (Ledger, error),
) ([]Leg, error) {
	if len(s.legs) == 0 {
		return nil, nil
	}

	ratio := netCost.Div(s.net.AverageEntryCost())
	out := make([]Leg, len(s.legs))

	for i, leg := range s.legs {
		price := leg.Ledger.AverageEntryCost().Mul(ratio)
		l, err := fn(leg, price, size.Mul(absWeight(leg.Weight)))
		if err != nil {
			return nil, fmt.Errorf("leg %s, %w", leg.Name, err)
		}
		out[i] = Leg{Name: leg.Name, Weight: leg.Weight, Ledger: l}
	}
	return out, nil
}

func (s Strategy) Name() string {
	return s.name
}

func (s Strategy) LegNames() []string {
	out := make([]string, len(s.legNames))
	copy(out, s.legNames)
	return out
}

// Net is the synthetic blended ledger.
func (s Strategy) Net() Ledger {
	return s.net
}

// Legs returns the per-leg ledgers, nil for blended strategies.
func (s Strategy) Legs() []Leg {
	if s.legs == nil {
		return nil
	}
	out := make([]Leg, len(s.legs))
	copy(out, s.legs)
	return out
}

func (s Strategy) TracksLegs() bool {
	return len(s.legs) > 0
}

// NetCost is the signed net cost per unit: positive for a debit, negative
// for a credit. With per-leg tracking it is sum(leg average * weight).
func (s Strategy) NetCost() decimal.Decimal {
	if !s.TracksLegs() {
		if s.net.Side() == Short {
			return s.net.AverageEntryCost().Neg()
		}
		return s.net.AverageEntryCost()
	}

	net := decimal.Zero
	for _, leg := range s.legs {
		net = net.Add(leg.Ledger.AverageEntryCost().Mul(decimal.NewFromInt(int64(leg.Weight))))
	}
	return net
}

func (s Strategy) IsClosed() bool {
	return s.net.IsClosed()
}

func (s Strategy) String() string {
	return fmt.Sprintf(
		"Strategy{%s [%s], Net: %s, Legs: %d}",
		s.name, strings.Join(s.legNames, ", "), s.net, len(s.legs),
	)
}

func absWeight(w int) decimal.Decimal {
	if w < 0 {
		w = -w
	}
	return decimal.NewFromInt(int64(w))
}
