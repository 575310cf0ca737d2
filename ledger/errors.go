package ledger

import "errors"

var (
	// non-positive price or size, bad multiplier, or a fill out of order
	ErrInvalidFill = errors.New("invalid fill")

	// exit size exceeds the remaining size. never clamped.
	ErrOversizedExit = errors.New("exit size exceeds remaining size")

	// any mutation of a ledger that has already been closed
	ErrClosedPosition = errors.New("position is closed")
)
