/*
Package shift provides the shift engine behind the clock.

PURPOSE:
  Employees clock in and out, or enter shifts by hand. This package decides
  whether a proposed shift is legal given the employee's existing shifts, the
  contract it is booked on and the recurrence the user asked for. It also
  splits clock-outs that run past midnight into one shift per calendar day.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift: a recorded or running interval of work for one employee
  - Contract: monthly quota plus an optional validity window
  - Interval: a half-open [Start, Finish) pair used by the overlap checker
  - Policy: the tunable constants (quantum, minimum length, midnight grace)

DESIGN PRINCIPLES:
  1. All timestamps carry a location; day boundaries are computed in the
     location of the timestamp itself
  2. Duration is derived, never authoritative input
  3. Storage is behind narrow interfaces (store.go) so the engine stays
     agnostic of SQLite vs. memory

SEE ALSO:
  - rounding.go: quantum rounding
  - overlap.go: interval overlap checks
  - recurrence.go: recurrence expansion
  - lifecycle.go: clock in / pause / clock out
  - validator.go: manual and recurring shift creation
*/
package shift

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type ContractID string
type ShiftID string

func NewShiftID() ShiftID       { return ShiftID(uuid.NewString()) }
func NewContractID() ContractID { return ContractID(uuid.NewString()) }

// ShiftKey marks a shift as something other than regular work.
type ShiftKey string

const (
	KeyNone     ShiftKey = ""
	KeySick     ShiftKey = "sick"
	KeyVacation ShiftKey = "vacation"
)

// Valid reports whether k is one of the known keys.
func (k ShiftKey) Valid() bool {
	switch k {
	case KeyNone, KeySick, KeyVacation:
		return true
	}
	return false
}

// =============================================================================
// SHIFT
// =============================================================================

// Shift is a time interval of work. Finished is nil while the shift runs.
type Shift struct {
	ID         ShiftID
	EmployeeID EmployeeID
	ContractID *ContractID

	Started  time.Time
	Finished *time.Time
	Duration time.Duration

	PauseStarted  *time.Time
	PauseDuration time.Duration

	Tags []string
	Note string
	Key  ShiftKey

	CreatedAt time.Time
}

// IsRunning reports whether the shift has not been clocked out yet.
func (s *Shift) IsRunning() bool { return s.Finished == nil }

// IsPaused reports whether a pause is in progress.
func (s *Shift) IsPaused() bool { return s.PauseStarted != nil }

// State returns the lifecycle state of the shift.
func (s *Shift) State() State {
	switch {
	case s == nil || !s.IsRunning():
		return StateNoActiveShift
	case s.IsPaused():
		return StatePaused
	default:
		return StateRunning
	}
}

// Recompute sets Duration from Started, Finished and PauseDuration.
// Running shifts keep a zero duration.
func (s *Shift) Recompute() {
	if s.Finished == nil {
		s.Duration = 0
		return
	}
	s.Duration = s.Finished.Sub(s.Started) - s.PauseDuration
}

// TotalPause returns the accumulated pause including an open pause up to now.
func (s *Shift) TotalPause(now time.Time) time.Duration {
	if s.PauseStarted != nil {
		return s.PauseDuration + now.Sub(*s.PauseStarted)
	}
	return s.PauseDuration
}

// Interval returns the shift as a half-open interval. ok is false for
// running shifts.
func (s *Shift) Interval() (Interval, bool) {
	if s.Finished == nil {
		return Interval{}, false
	}
	return Interval{Start: s.Started, Finish: *s.Finished}, true
}

// SameContract reports whether the shift is booked on contract (nil = none).
func (s *Shift) SameContract(contract *ContractID) bool {
	return sameContract(s.ContractID, contract)
}

func sameContract(a, b *ContractID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// State of an employee's running shift.
type State string

const (
	StateNoActiveShift State = "no_active_shift"
	StateRunning       State = "running"
	StatePaused        State = "paused"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Contract bounds how and when shifts may be recorded for an employee.
// Minutes is the monthly quota. StartDate and EndDate are dates; only the
// calendar day is significant.
type Contract struct {
	ID              ContractID
	EmployeeID      EmployeeID
	Department      string
	DepartmentShort string
	Minutes         int
	StartDate       *time.Time
	EndDate         *time.Time
	CreatedAt       time.Time
}

// Hours returns the monthly quota formatted as HH:MM.
func (c *Contract) Hours() string { return FormatWorkHours(c.Minutes) }

// Window returns the contract validity window, if any.
func (c *Contract) Window() (Period, bool) {
	if c.StartDate == nil || c.EndDate == nil {
		return Period{}, false
	}
	return Period{Start: DateOf(*c.StartDate), End: DateOf(*c.EndDate)}, true
}

// =============================================================================
// INTERVAL
// =============================================================================

// Interval is the half-open range [Start, Finish).
type Interval struct {
	Start  time.Time
	Finish time.Time
}

// Length returns Finish - Start.
func (i Interval) Length() time.Duration { return i.Finish.Sub(i.Start) }

// =============================================================================
// POLICY
// =============================================================================

// Policy carries the tunable rules of the engine.
type Policy struct {
	// Quantum is the rounding granularity for clock-in/out timestamps.
	Quantum time.Duration

	// MinDuration is the shortest shift that is kept.
	MinDuration time.Duration

	// MidnightGrace suppresses the "too short" warning when a clocked shift
	// started this close to midnight.
	MidnightGrace time.Duration

	// MaxDaily is the daily work time above which a day is flagged.
	MaxDaily time.Duration

	// MaxOccurrences caps the number of shifts one recurring request may
	// produce. Zero means no cap.
	MaxOccurrences int
}

// DefaultPolicy returns the standard rules: 5 minute quantum and minimum,
// 2 minute midnight grace, 10 hours per day and at most a year of daily
// occurrences per recurrence.
func DefaultPolicy() Policy {
	return Policy{
		Quantum:        5 * time.Minute,
		MinDuration:    5 * time.Minute,
		MidnightGrace:  2 * time.Minute,
		MaxDaily:       10 * time.Hour,
		MaxOccurrences: 366,
	}
}

// dayEnd returns the last quantum boundary of the day, e.g. 23:55.
func (p Policy) dayEnd(day time.Time) time.Time {
	return NextDay(day).Add(-p.Quantum)
}
