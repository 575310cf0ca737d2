// Package ledger tracks a position's size and cost basis across a sequence
// of fills and computes the realized P&L of every exit. It does no I/O;
// callers load fills from storage, apply an operation and persist the
// result themselves.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// accepts the stored spelling as well as the order-ticket shorthands used
// in the discord commands (BTO / STO)
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BTO", "BUY":
		return Long, nil
	case "SHORT", "STO", "SELL":
		return Short, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

type FillKind string

const (
	Open  FillKind = "OPEN"
	Add   FillKind = "ADD"
	Trim  FillKind = "TRIM"
	Close FillKind = "CLOSE"
)

func ParseFillKind(s string) (FillKind, error) {
	switch FillKind(strings.ToUpper(strings.TrimSpace(s))) {
	case Open:
		return Open, nil
	case Add:
		return Add, nil
	case Trim:
		return Trim, nil
	case Close:
		return Close, nil
	}
	return "", fmt.Errorf("invalid fill kind %q", s)
}

// IsEntry reports whether the fill increases the position.
func (k FillKind) IsEntry() bool {
	return k == Open || k == Add
}

// IsExit reports whether the fill realizes P&L.
func (k FillKind) IsExit() bool {
	return k == Trim || k == Close
}

// Fill is a single executed transaction against a position. Size is always
// positive, the direction is implied by Kind.
type Fill struct {
	Kind      FillKind
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

func (f Fill) String() string {
	return fmt.Sprintf(
		"Fill{%s, Price: %s, Size: %s, Timestamp: %d}",
		f.Kind, f.Price, f.Size, f.Timestamp.UTC().Unix(),
	)
}

// validate the parts of a fill that don't depend on ledger state
func (f Fill) validate() error {
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price must be > 0, got %s", ErrInvalidFill, f.Price)
	}
	if !f.Size.IsPositive() {
		return fmt.Errorf("%w: size must be > 0, got %s", ErrInvalidFill, f.Size)
	}
	return nil
}

const (
	SharesMultiplier  = 1
	OptionsMultiplier = 100
)
