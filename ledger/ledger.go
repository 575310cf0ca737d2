package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the ordered fill history of one position. It is a value: every
// mutating operation returns a new Ledger and leaves the receiver as it
// was, so a rejected fill never leaves a half applied state behind.
// Aggregates are replayed from the fills on every read.
type Ledger struct {
	side       Side
	multiplier decimal.Decimal
	fills      []Fill
}

// running aggregates while replaying a fill history
type state struct {
	count     int
	remaining decimal.Decimal
	costBasis decimal.Decimal // avg * remaining, kept exact across entries
	avg       decimal.Decimal
	closed    bool
	last      time.Time
}

// OpenLedger creates a ledger holding a single OPEN fill.
func OpenLedger(side Side, multiplier decimal.Decimal, price decimal.Decimal, size decimal.Decimal, at time.Time) (Ledger, error) {
	if side != Long && side != Short {
		return Ledger{}, fmt.Errorf("%w: unknown side %q", ErrInvalidFill, side)
	}
	if !multiplier.IsPositive() {
		return Ledger{}, fmt.Errorf("%w: multiplier must be > 0, got %s", ErrInvalidFill, multiplier)
	}

	l := Ledger{side: side, multiplier: multiplier}
	return l.append(Fill{Kind: Open, Price: price, Size: size, Timestamp: at})
}

// Replay rebuilds a ledger from a stored fill history, validating every
// fill exactly as if it had been appended one at a time.
func Replay(side Side, multiplier decimal.Decimal, fills []Fill) (Ledger, error) {
	if len(fills) == 0 {
		return Ledger{}, fmt.Errorf("%w: a ledger needs an OPEN fill", ErrInvalidFill)
	}

	if fills[0].Kind != Open {
		return Ledger{}, fmt.Errorf("%w: first fill is %s, not OPEN", ErrInvalidFill, fills[0].Kind)
	}
	l, err := OpenLedger(side, multiplier, fills[0].Price, fills[0].Size, fills[0].Timestamp)
	if err != nil {
		return Ledger{}, fmt.Errorf("fill 0, %w", err)
	}

	for i, f := range fills[1:] {
		l, err = l.append(f)
		if err != nil {
			return Ledger{}, fmt.Errorf("fill %d, %w", i+1, err)
		}
	}
	return l, nil
}

// Add appends an ADD fill. The new average is weighted by the size that is
// currently held, not by everything ever opened.
func (l Ledger) Add(price decimal.Decimal, size decimal.Decimal, at time.Time) (Ledger, error) {
	return l.append(Fill{Kind: Add, Price: price, Size: size, Timestamp: at})
}

// Trim appends a partial exit and returns its P&L, computed against the
// average cost before the trim. Trimming exactly the remaining size is
// recorded as a CLOSE and leaves the ledger closed.
func (l Ledger) Trim(price decimal.Decimal, size decimal.Decimal, at time.Time) (Ledger, RealizedPnL, error) {
	kind := Trim
	if size.Equal(l.RemainingSize()) && l.len() > 0 {
		kind = Close
	}
	return l.exit(Fill{Kind: kind, Price: price, Size: size, Timestamp: at})
}

// Close exits the whole remaining size.
func (l Ledger) Close(price decimal.Decimal, at time.Time) (Ledger, RealizedPnL, error) {
	return l.exit(Fill{Kind: Close, Price: price, Size: l.RemainingSize(), Timestamp: at})
}

func (l Ledger) exit(f Fill) (Ledger, RealizedPnL, error) {
	before, err := l.state()
	if err != nil {
		return l, RealizedPnL{}, err
	}

	next, err := l.append(f)
	if err != nil {
		return l, RealizedPnL{}, err
	}

	pnl := ComputeExitPnL(l.side, before.avg, f.Price, f.Size, l.multiplier)
	return next, pnl, nil
}

// validates f against the current state and returns a ledger with f appended
func (l Ledger) append(f Fill) (Ledger, error) {
	st, err := l.state()
	if err != nil {
		return l, err
	}
	if _, err := st.apply(f); err != nil {
		return l, err
	}

	// full slice expression so the new ledger never shares a backing array
	// with the receiver
	fills := append(l.fills[:len(l.fills):len(l.fills)], f)
	return Ledger{side: l.side, multiplier: l.multiplier, fills: fills}, nil
}

func (l Ledger) state() (state, error) {
	st := state{}
	for i, f := range l.fills {
		var err error
		st, err = st.apply(f)
		if err != nil {
			return st, fmt.Errorf("corrupt ledger at fill %d, %w", i, err)
		}
	}
	return st, nil
}

func (st state) apply(f Fill) (state, error) {
	if st.closed {
		return st, ErrClosedPosition
	}
	if err := f.validate(); err != nil {
		return st, err
	}
	if st.count > 0 && f.Timestamp.Before(st.last) {
		return st, fmt.Errorf(
			"%w: fill at %s is earlier than the previous fill at %s",
			ErrInvalidFill, f.Timestamp.Format(time.RFC3339), st.last.Format(time.RFC3339),
		)
	}

	switch f.Kind {
	case Open:
		if st.count > 0 {
			return st, fmt.Errorf("%w: position is already open", ErrInvalidFill)
		}
		st.remaining = f.Size
		st.costBasis = f.Price.Mul(f.Size)
		st.avg = f.Price

	case Add:
		if st.count == 0 {
			return st, fmt.Errorf("%w: cannot ADD before OPEN", ErrInvalidFill)
		}
		st.remaining = st.remaining.Add(f.Size)
		st.costBasis = st.costBasis.Add(f.Price.Mul(f.Size))
		st.avg = st.costBasis.Div(st.remaining)

	case Trim, Close:
		if st.count == 0 {
			return st, fmt.Errorf("%w: cannot %s before OPEN", ErrInvalidFill, f.Kind)
		}
		if f.Size.GreaterThan(st.remaining) {
			return st, fmt.Errorf(
				"%w: requested %s, remaining %s",
				ErrOversizedExit, f.Size, st.remaining,
			)
		}
		if f.Kind == Close && !f.Size.Equal(st.remaining) {
			return st, fmt.Errorf(
				"%w: CLOSE must exit the full remaining size %s, got %s",
				ErrInvalidFill, st.remaining, f.Size,
			)
		}
		st.remaining = st.remaining.Sub(f.Size)
		st.costBasis = st.avg.Mul(st.remaining)
		st.closed = st.remaining.IsZero()

	default:
		return st, fmt.Errorf("%w: unknown fill kind %q", ErrInvalidFill, f.Kind)
	}

	st.count++
	st.last = f.Timestamp
	return st, nil
}

func (l Ledger) len() int {
	return len(l.fills)
}

func (l Ledger) Side() Side {
	return l.side
}

func (l Ledger) Multiplier() decimal.Decimal {
	return l.multiplier
}

// Fills returns a copy of the fill history.
func (l Ledger) Fills() []Fill {
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

func (l Ledger) RemainingSize() decimal.Decimal {
	st, _ := l.state()
	return st.remaining
}

// AverageEntryCost is the weighted average price of the units currently
// held. Exits never move it; once closed it reports the last average.
func (l Ledger) AverageEntryCost() decimal.Decimal {
	st, _ := l.state()
	return st.avg
}

func (l Ledger) IsClosed() bool {
	st, _ := l.state()
	return st.closed
}

// IsZero reports whether the ledger was never opened.
func (l Ledger) IsZero() bool {
	return len(l.fills) == 0
}

// ClosedAt returns the timestamp of the final exit, false if still open.
func (l Ledger) ClosedAt() (time.Time, bool) {
	if !l.IsClosed() {
		return time.Time{}, false
	}
	return l.fills[len(l.fills)-1].Timestamp, true
}

// Exits replays the history and returns the realized P&L of every TRIM and
// CLOSE fill, in order.
func (l Ledger) Exits() []RealizedPnL {
	exits := []RealizedPnL{}

	st := state{}
	for _, f := range l.fills {
		if f.Kind.IsExit() {
			exits = append(exits, ComputeExitPnL(l.side, st.avg, f.Price, f.Size, l.multiplier))
		}

		next, err := st.apply(f)
		if err != nil {
			break
		}
		st = next
	}
	return exits
}

// RealizedTotal sums TotalPnL over every exit.
func (l Ledger) RealizedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.Exits() {
		total = total.Add(e.TotalPnL)
	}
	return total
}

// Unrealized marks the remaining size to the given price.
func (l Ledger) Unrealized(mark decimal.Decimal) RealizedPnL {
	st, _ := l.state()
	return ComputeExitPnL(l.side, st.avg, mark, st.remaining, l.multiplier)
}

func (l Ledger) String() string {
	st, _ := l.state()
	return fmt.Sprintf(
		"Ledger{%s x%s, Fills: %d, Remaining: %s, AvgCost: %s, Closed: %t}",
		l.side, l.multiplier, len(l.fills), st.remaining, st.avg, st.closed,
	)
}
