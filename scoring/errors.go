/*
errors.go - Centralized error types for the scoring engine

ERROR CATEGORIES:
  1. Validation errors - bad activity input, unknown type, empty clock-out.
     Never persisted; fail only the single request.
  2. Store errors - document read/write failures. Transient; the caller
     (aggregator cycle, goal batch, event subscriber) retries or is
     superseded by the next run.
  3. Conflict/lookup errors - duplicates, existing summaries, missing docs.

USAGE:
  if errors.Is(err, scoring.ErrValidation) {
      // 400, nothing was written
  }
*/
package scoring

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownActivityType is returned when a type is absent from the rule table.
	ErrUnknownActivityType = errors.New("unknown activity type")

	// ErrTransientStore wraps document store read/write failures.
	ErrTransientStore = errors.New("transient store error")

	// ErrNotFound is returned when a referenced document doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActivity is returned when an activity ID is already stored.
	ErrDuplicateActivity = errors.New("duplicate activity")

	// ErrSummaryExists is returned when a summary for (user, date) exists and
	// the submission is not an explicit re-submission.
	ErrSummaryExists = errors.New("daily summary already submitted")

	// ErrEmptySummary is returned for a clock-out with zero points and no notes.
	ErrEmptySummary = errors.New("empty daily summary: no points and no notes")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Code    string // e.g. "required", "negative", "invalid_period"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownActivityTypeError names the type that failed to resolve.
type UnknownActivityTypeError struct {
	Type string
}

func (e *UnknownActivityTypeError) Error() string {
	return fmt.Sprintf("unknown activity type %q", e.Type)
}

func (e *UnknownActivityTypeError) Unwrap() []error {
	return []error{ErrUnknownActivityType, ErrValidation}
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrTransientStore, e.Err}
}

// WrapStore marks err as a transient store failure of op.
// Sentinels the store returns on purpose pass through untouched.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateActivity) ||
		errors.Is(err, ErrSummaryExists) || errors.Is(err, ErrTransientStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEmptySummary)
}

// IsConflict returns true for duplicate writes.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateActivity) ||
		errors.Is(err, ErrSummaryExists)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
