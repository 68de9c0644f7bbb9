// Package apperr defines the error taxonomy shared across service layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoteNotFound is returned when a note id does not exist.
	ErrNoteNotFound = errors.New("note not found")

	// ErrInvalidAccrualDate is returned when an accrual target date precedes
	// the note's issuance date.
	ErrInvalidAccrualDate = errors.New("invalid accrual date")

	// ErrInvalidStateTransition is returned when an operation is attempted
	// from a status that does not permit it.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidConversionInput is returned for non-positive trigger prices or
	// a cap calculation requested without a round valuation.
	ErrInvalidConversionInput = errors.New("invalid conversion input")

	// ErrInvalidNoteTerms is returned when note issuance parameters fail
	// validation.
	ErrInvalidNoteTerms = errors.New("invalid note terms")

	// ErrConcurrentModification is returned when an optimistic-concurrency
	// save observes a stale version. Callers may retry from a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// InsufficientRepaymentError is returned when a repayment amount is below the
// full payoff. It carries the required amount so the caller can correct.
type InsufficientRepaymentError struct {
	Required decimal.Decimal
}

func (e *InsufficientRepaymentError) Error() string {
	return fmt.Sprintf("insufficient repayment: %s required for full payoff", e.Required.StringFixed(2))
}
