package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance is returned when a debit would drive the
	// account balance negative. Match with errors.Is; use errors.As with
	// *InsufficientBalanceError to read the shortfall.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidDelta is returned when the delta is zero or its sign does
	// not match the entry kind
	ErrInvalidDelta = errors.New("invalid credit delta")

	// ErrStorage is returned when the ledger store itself fails. It is
	// batch-fatal: callers abort remaining work and surface it.
	ErrStorage = errors.New("ledger storage unavailable")
)

// InsufficientBalanceError carries the shortfall amount so callers can
// report how many credits were missing.
type InsufficientBalanceError struct {
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: short %d credits", e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
