package shared

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Error taxonomy shared by every settlement entry point. Entity-specific error
// types match these through their Is method.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadySettled    = errors.New("task already settled")
	ErrInvalidState      = errors.New("invalid state")
	ErrPoolExhausted     = errors.New("address pool exhausted")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCycleCapExceeded  = errors.New("cycle cap exceeded")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidRequest    = errors.New("invalid request")
)

// CycleCapError reports how much profit may still be credited in the current cycle.
type CycleCapError struct {
	Remaining decimal.Decimal
}

func (e CycleCapError) Error() string {
	return "cycle cap exceeded, remaining headroom: " + e.Remaining.StringFixed(2)
}

func (e CycleCapError) Is(target error) bool {
	return target == ErrCycleCapExceeded
}

// InvalidStateError describes why an operation is not valid for an entity's current status.
type InvalidStateError struct {
	Entity string
	Status string
	Op     string
}

func (e InvalidStateError) Error() string {
	return "cannot " + e.Op + " " + e.Entity + " in status " + e.Status
}

func (e InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
