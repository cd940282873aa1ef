/*
errors.go - Error taxonomy of the shift engine

PURPOSE:
  Every rejection the engine produces is a recoverable, user-facing
  validation outcome. Callers test the kind with errors.Is against the
  sentinels below and read details from the structured types.

ERROR CATEGORIES:
  1. Lifecycle errors - clock in/out against the wrong state
  2. Validation errors - bad intervals, midnight crossings, contract window
  3. Overlap errors - carry the conflicting shifts for display
  4. Store errors - lookups and the running-shift unique constraint

USAGE:
  res, err := validator.Create(ctx, input)
  var overlap *shift.OverlapError
  if errors.As(err, &overlap) {
      for _, c := range overlap.Conflicts { ... }
  }

SEE ALSO:
  - validator.go: produces validation and overlap errors
  - lifecycle.go: produces lifecycle errors
*/
package shift

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyRunning is returned when clocking in while a shift is open.
	ErrAlreadyRunning = errors.New("shift already running")

	// ErrNoActiveShift is returned when clocking out or pausing without an
	// open shift.
	ErrNoActiveShift = errors.New("no active shift")

	// ErrInvalidInterval covers finish <= start, too short shifts, future
	// timestamps and pauses longer than the shift.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrSpansMultipleDays is returned for manual shifts crossing midnight.
	ErrSpansMultipleDays = errors.New("shift spans multiple days")

	// ErrContractWindow is returned when a shift or recurrence lies outside
	// the contract's start/end dates.
	ErrContractWindow = errors.New("outside contract window")

	// ErrOverlap is returned when a shift overlaps existing shifts.
	ErrOverlap = errors.New("shift overlaps existing shifts")

	// ErrInvalidRecurrence is returned for unknown frequencies or a missing
	// until date.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrInvalidContract is returned for malformed contract definitions.
	ErrInvalidContract = errors.New("invalid contract")

	// ErrContractNotFound is returned when a referenced contract does not
	// exist or belongs to another employee.
	ErrContractNotFound = errors.New("contract not found")

	// ErrShiftNotFound is returned when a referenced shift does not exist.
	ErrShiftNotFound = errors.New("shift not found")

	// ErrRunningShiftExists is returned by stores when saving a second open
	// shift for an employee. The lifecycle maps it to ErrAlreadyRunning.
	ErrRunningShiftExists = errors.New("running shift exists for employee")

	// ErrNaiveTimestamp is returned at the boundary for timestamps without
	// an explicit UTC offset.
	ErrNaiveTimestamp = errors.New("timestamp without timezone")

	// ErrStoreRequired is returned when an operation needs a TxStore.
	ErrStoreRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError is a single rule violation. Kind is one of the sentinels
// above and is what errors.Is matches.
type ValidationError struct {
	Kind    error
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind error, field, message string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: message}
}

// Conflict describes one existing shift in an overlap, as plain values.
type Conflict struct {
	ShiftID    ShiftID
	ContractID *ContractID
	Started    time.Time
	Finished   time.Time
	Duration   time.Duration
}

// OverlapError lists every shift the candidate collides with.
type OverlapError struct {
	Candidate Interval
	Conflicts []Conflict
}

func (e *OverlapError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		contract := "-"
		if c.ContractID != nil {
			contract = string(*c.ContractID)
		}
		parts[i] = fmt.Sprintf("[contract %s, %s, %s, %s]",
			contract, c.Started.Format(time.RFC3339), c.Duration, c.Finished.Format(time.RFC3339))
	}
	return fmt.Sprintf("shift overlaps %d existing shift(s): %s", len(e.Conflicts), strings.Join(parts, " "))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

func newOverlapError(candidate Interval, shifts []Shift) *OverlapError {
	conflicts := make([]Conflict, 0, len(shifts))
	for _, s := range shifts {
		c := Conflict{ShiftID: s.ID, ContractID: s.ContractID, Started: s.Started, Duration: s.Duration}
		if s.Finished != nil {
			c.Finished = *s.Finished
		}
		conflicts = append(conflicts, c)
	}
	return &OverlapError{Candidate: candidate, Conflicts: conflicts}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether err is a validation outcome caused by input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrSpansMultipleDays) ||
		errors.Is(err, ErrContractWindow) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrInvalidRecurrence) ||
		errors.Is(err, ErrInvalidContract) ||
		errors.Is(err, ErrNaiveTimestamp)
}

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrNoActiveShift) ||
		errors.Is(err, ErrRunningShiftExists)
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrShiftNotFound) ||
		errors.Is(err, ErrContractNotFound)
}
