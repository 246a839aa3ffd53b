/*
errors.go - Centralized error types for the compliance engine

PURPOSE:
  All error kinds in one place. Callers match on the two sentinel kinds
  (ErrNotFound, ErrInvalidOperation) with errors.Is; the structured errors
  carry the offending values for diagnostics and unwrap to their kind.

ERROR CATEGORIES:
  1. NotFound - ship, route, pool or baseline has no backing data
  2. InvalidOperation - a precondition failed during validation
  3. Store errors - wrapped with context, surfaced as internal failures

RETRIES:
  Nothing in this package is retryable. The computations are deterministic,
  so the caller must change the input.
*/
package compliance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a ship/route/year has no backing data.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned when a precondition is violated.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrDuplicateIdempotencyKey is returned by stores when a keyed write
	// already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateRoute is returned by stores when a route id is taken.
	ErrDuplicateRoute = errors.New("duplicate route id")

	// ErrAlreadyBanked is returned when a ship-year surplus was banked before.
	ErrAlreadyBanked = fmt.Errorf("%w: surplus already banked", ErrInvalidOperation)

	// ErrInvalidFuel is returned when a fuel composition breaks its invariants.
	ErrInvalidFuel = fmt.Errorf("%w: invalid fuel composition", ErrInvalidOperation)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names what was looked up.
type NotFoundError struct {
	Kind string // "route", "pool", "baseline"
	Key  string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NonPositiveBalanceError is returned when banking a zero or negative balance.
type NonPositiveBalanceError struct {
	ShipID  ShipID
	Year    int
	Balance decimal.Decimal
}

func (e *NonPositiveBalanceError) Error() string {
	return fmt.Sprintf("cannot bank: balance not positive for %s/%d (cb %s)",
		e.ShipID, e.Year, e.Balance)
}

func (e *NonPositiveBalanceError) Unwrap() error { return ErrInvalidOperation }

// InsufficientBankError is returned when applying more than is banked.
type InsufficientBankError struct {
	ShipID    ShipID
	Year      int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBankError) Error() string {
	return fmt.Sprintf("insufficient banked amount for %s/%d: requested %s, available %s",
		e.ShipID, e.Year, e.Requested, e.Available)
}

func (e *InsufficientBankError) Unwrap() error { return ErrInvalidOperation }

// PoolTotalError is returned when the members' balances sum below zero.
type PoolTotalError struct {
	Year  int
	Total decimal.Decimal
}

func (e *PoolTotalError) Error() string {
	return fmt.Sprintf("pool invalid: negative total %s for year %d", e.Total, e.Year)
}

func (e *PoolTotalError) Unwrap() error { return ErrInvalidOperation }

// ExitSafetyError is returned when allocation would leave a member worse off.
type ExitSafetyError struct {
	ShipID   ShipID
	CBBefore decimal.Decimal
	CBAfter  decimal.Decimal
	Reason   string
}

func (e *ExitSafetyError) Error() string {
	return fmt.Sprintf("pool exit check failed for %s: %s (before %s, after %s)",
		e.ShipID, e.Reason, e.CBBefore, e.CBAfter)
}

func (e *ExitSafetyError) Unwrap() error { return ErrInvalidOperation }

// FuelCompositionError names the fuel and the broken invariant.
type FuelCompositionError struct {
	FuelName string
	Reason   string
}

func (e *FuelCompositionError) Error() string {
	return fmt.Sprintf("fuel %q: %s", e.FuelName, e.Reason)
}

func (e *FuelCompositionError) Unwrap() error { return ErrInvalidFuel }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// IsNotFound returns true if the error indicates missing data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the caller must change the input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}
