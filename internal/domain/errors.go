package domain

import "fmt"

// ValidationError rejects bad input before any side effect: bps totals that
// do not add up, bids below the minimum, expired offers, inactive listings.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StateConflictError means the entity is no longer in the state the operation
// assumed, usually because of a concurrent writer. No side effects occurred.
type StateConflictError struct {
	Entity string
	ID     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: %s %s was modified concurrently", e.Entity, e.ID)
}

// ExternalVerificationError means an on-chain payment proof is missing,
// unconfirmed, or does not match the claimed amount.
type ExternalVerificationError struct {
	Reason string
}

func (e *ExternalVerificationError) Error() string {
	return "external verification: " + e.Reason
}

// InsufficientFundsError means an owed balance is non-positive or exceeds the
// treasury's available liquid balance.
type InsufficientFundsError struct {
	Owed      int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: owed %d lamports, available %d", e.Owed, e.Available)
}

// TransientInfraError wraps RPC timeouts and rate limits. The caller may
// retry; the engine itself never retries a money-moving step.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infra failure in %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error {
	return e.Err
}
