/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All domain error types in one place. Every guard violation is reported
  synchronously as a typed error carrying enough structure for a UI to
  render a specific, actionable message.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input
  2. Transition errors - state machine guard violations
  3. Conflict errors   - overlapping entries, lost concurrency races
  4. Rollover errors   - atomic rollover aborted

RETRY POLICY:
  ErrConcurrencyConflict is the only error a caller should retry (by
  re-fetching and re-submitting). Everything else is a caller or
  business-logic mistake and must not be retried blindly.
*/
package leave

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrYearOverlap is returned when a new leave year intersects an
	// existing one.
	ErrYearOverlap = errors.New("leave year overlaps an existing year")

	// ErrOutsideLeaveYear is returned when an entry's dates are not fully
	// contained in the target leave year.
	ErrOutsideLeaveYear = errors.New("dates fall outside the leave year")

	// ErrEntryOverlap is returned when an entry overlaps another active
	// entry for the same employee.
	ErrEntryOverlap = errors.New("overlapping leave entry")

	// ErrInvalidTransition is returned on a state machine guard violation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCapExceeded is returned when a hard-capped category (volunteer
	// days) would exceed its cap.
	ErrCapExceeded = errors.New("category cap exceeded")

	// ErrConcurrencyConflict is returned when a transition loses a race on
	// the same entry. Safe to retry after re-fetching.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrInvalidAmount is returned for amounts below the half-day
	// granularity or otherwise malformed.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrRolloverFailed is returned when a rollover aborts. Nothing has
	// been committed; operator review is required before re-running.
	ErrRolloverFailed = errors.New("rollover failed")

	// ErrRolloverInProgress is returned when a rollover for the same
	// source year is already running.
	ErrRolloverInProgress = errors.New("rollover already in progress for this year")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input with the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// RangeError reports a date range problem.
type RangeError struct {
	Start time.Time
	End   time.Time
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("end date %s before start date %s",
		e.End.Format("2006-01-02"), e.Start.Format("2006-01-02"))
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// OverlapError reports a conflicting leave entry.
type OverlapError struct {
	EmployeeID EmployeeID
	ExistingID EntryID
	Start      time.Time
	End        time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("dates overlap existing entry %s (%s to %s)",
		e.ExistingID, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *OverlapError) Unwrap() error { return ErrEntryOverlap }

// YearOverlapError reports a new leave year intersecting an existing one.
type YearOverlapError struct {
	ExistingID LeaveYearID
	Start      time.Time
	End        time.Time
}

func (e *YearOverlapError) Error() string {
	return fmt.Sprintf("range intersects leave year %s (%s to %s)",
		e.ExistingID, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *YearOverlapError) Unwrap() error { return ErrYearOverlap }

// TransitionError reports an illegal state machine transition.
type TransitionError struct {
	EntryID EntryID
	From    EntryStatus
	Attempt string // the operation attempted, e.g. "approve"
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s entry %s in status %q", e.Attempt, e.EntryID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CapExceededError reports a hard cap violation with the numbers needed
// for an actionable message.
type CapExceededError struct {
	EmployeeID EmployeeID
	Type       LeaveType
	Cap        Days
	Used       Days
	Requested  Days
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("%s cap is %s days per year: %s used, %s requested",
		e.Type, e.Cap, e.Used, e.Requested)
}

func (e *CapExceededError) Unwrap() error { return ErrCapExceeded }

// RolloverError reports why an atomic rollover aborted.
type RolloverError struct {
	FromYear LeaveYearID
	Reason   string
	Cause    error
}

func (e *RolloverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rollover from %s aborted: %s: %v", e.FromYear, e.Reason, e.Cause)
	}
	return fmt.Sprintf("rollover from %s aborted: %s", e.FromYear, e.Reason)
}

func (e *RolloverError) Unwrap() error { return ErrRolloverFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than an internal failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrYearOverlap) ||
		errors.Is(err, ErrOutsideLeaveYear) ||
		errors.Is(err, ErrEntryOverlap) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCapExceeded) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
