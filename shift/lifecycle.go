/*
lifecycle.go - Clock in, pause and clock out of the running shift

PURPOSE:
  Manages the single open shift of an employee through its states:

    NoActiveShift ──ClockIn──▶ Running ◀──TogglePause──▶ Paused
          ▲                       │                        │
          └────────ClockOut───────┴────────ClockOut────────┘

CLOCK-OUT STEPS:
  1. Round start and finish to the nearest quantum (5 minutes)
  2. If the finish lies on a later day than the start, clamp the shift to
     23:55 of the start day and carry the remainder into a new shift from
     00:00 of the next day, provided it lasts at least the minimum
  3. Recompute the duration (minus pauses)
  4. Delete the shift if it ended up shorter than the minimum; warn unless
     it started within the midnight grace period

CONCURRENCY:
  ClockIn holds a per-employee lock across the check and the insert. The
  store's unique constraint on open shifts backs this up across processes.

SEE ALSO:
  - rounding.go: Round
  - store.go: running-shift invariant
*/
package shift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// LIFECYCLE
// =============================================================================

type Lifecycle struct {
	Store     Store
	Contracts ContractStore
	Clock     Clock
	Policy    Policy
	Log       *zap.SugaredLogger

	locks employeeLocks
}

// NewLifecycle creates a lifecycle manager. A nil log discards output.
func NewLifecycle(store Store, contracts ContractStore, clock Clock, policy Policy, log *zap.SugaredLogger) *Lifecycle {
	return &Lifecycle{Store: store, Contracts: contracts, Clock: clock, Policy: policy, Log: orNop(log)}
}

// Running returns the open shift of the employee and its state.
func (l *Lifecycle) Running(ctx context.Context, employee EmployeeID) (*Shift, State, error) {
	s, err := l.Store.FindRunning(ctx, employee)
	if err != nil {
		return nil, StateNoActiveShift, fmt.Errorf("failed to load running shift: %w", err)
	}
	return s, s.State(), nil
}

// ClockIn starts a new shift at the current time.
func (l *Lifecycle) ClockIn(ctx context.Context, employee EmployeeID, contract *ContractID) (*Shift, error) {
	unlock := l.locks.lock(employee)
	defer unlock()

	running, err := l.Store.FindRunning(ctx, employee)
	if err != nil {
		return nil, fmt.Errorf("failed to load running shift: %w", err)
	}
	if running != nil {
		return nil, fmt.Errorf("%w: shift %s started %s", ErrAlreadyRunning, running.ID, running.Started.Format(time.RFC3339))
	}

	now := l.Clock.Now()
	if contract != nil {
		c, err := resolveContract(ctx, l.Contracts, employee, *contract)
		if err != nil {
			return nil, err
		}
		if vErr := checkContractDay(c, now); vErr != nil {
			return nil, vErr
		}
	}

	s := &Shift{
		ID:         NewShiftID(),
		EmployeeID: employee,
		ContractID: contract,
		Started:    now,
		CreatedAt:  now,
	}
	if err := l.Store.Save(ctx, s); err != nil {
		if errors.Is(err, ErrRunningShiftExists) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
		}
		return nil, fmt.Errorf("failed to save shift: %w", err)
	}
	l.log().Infow("clocked in", "employee", employee, "shift", s.ID)
	return s, nil
}

// TogglePause pauses a running shift or resumes a paused one.
func (l *Lifecycle) TogglePause(ctx context.Context, employee EmployeeID) (*Shift, error) {
	return l.updatePause(ctx, employee, func(s *Shift, now time.Time) {
		if s.IsPaused() {
			resume(s, now)
		} else {
			s.PauseStarted = &now
		}
	})
}

// Pause starts a pause unless one is already in progress.
func (l *Lifecycle) Pause(ctx context.Context, employee EmployeeID) (*Shift, error) {
	return l.updatePause(ctx, employee, func(s *Shift, now time.Time) {
		if !s.IsPaused() {
			s.PauseStarted = &now
		}
	})
}

// Resume ends the pause in progress, if any.
func (l *Lifecycle) Resume(ctx context.Context, employee EmployeeID) (*Shift, error) {
	return l.updatePause(ctx, employee, func(s *Shift, now time.Time) {
		resume(s, now)
	})
}

func (l *Lifecycle) updatePause(ctx context.Context, employee EmployeeID, fn func(*Shift, time.Time)) (*Shift, error) {
	unlock := l.locks.lock(employee)
	defer unlock()

	s, err := l.Store.FindRunning(ctx, employee)
	if err != nil {
		return nil, fmt.Errorf("failed to load running shift: %w", err)
	}
	if s == nil {
		return nil, ErrNoActiveShift
	}
	fn(s, l.Clock.Now())
	if err := l.Store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save shift: %w", err)
	}
	return s, nil
}

func resume(s *Shift, now time.Time) {
	if s.PauseStarted == nil {
		return
	}
	if d := now.Sub(*s.PauseStarted); d > 0 {
		s.PauseDuration += d
	}
	s.PauseStarted = nil
}

// =============================================================================
// CLOCK OUT
// =============================================================================

// ClockOutResult describes what clocking out did. Shift is nil when the
// shift was deleted for being too short. Warning is set when the deletion
// should be reported to the user.
type ClockOutResult struct {
	Shift   *Shift
	Carry   *Shift
	Deleted bool
	Warning error
}

// ClockOut finishes the running shift at finishedAt (now when zero).
func (l *Lifecycle) ClockOut(ctx context.Context, employee EmployeeID, finishedAt time.Time) (*ClockOutResult, error) {
	unlock := l.locks.lock(employee)
	defer unlock()

	running, err := l.Store.FindRunning(ctx, employee)
	if err != nil {
		return nil, fmt.Errorf("failed to load running shift: %w", err)
	}
	if running == nil {
		return nil, ErrNoActiveShift
	}

	now := l.Clock.Now()
	if finishedAt.IsZero() {
		finishedAt = now
	}
	if finishedAt.After(now) {
		return nil, invalid(ErrInvalidInterval, "finished", "a shift must not finish in the future")
	}
	if finishedAt.Before(running.Started) {
		return nil, invalid(ErrInvalidInterval, "finished", "a shift must not finish before it has started")
	}
	finishedAt = finishedAt.In(running.Started.Location())
	resume(running, finishedAt)

	plan := PlanClockOut(*running, finishedAt, l.Policy)
	if plan.Carry != nil {
		plan.Carry.ID = NewShiftID()
		plan.Carry.CreatedAt = now
	}

	apply := func(st Store) error {
		if plan.DeletePrimary {
			if err := st.Delete(ctx, plan.Primary.ID); err != nil {
				return fmt.Errorf("failed to delete short shift: %w", err)
			}
		} else if err := st.Save(ctx, &plan.Primary); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}
		if plan.Carry != nil {
			if err := st.Save(ctx, plan.Carry); err != nil {
				return fmt.Errorf("failed to save carry-over shift: %w", err)
			}
		}
		return nil
	}
	if tx, ok := l.Store.(TxStore); ok {
		err = tx.WithTx(ctx, apply)
	} else {
		err = apply(l.Store)
	}
	if err != nil {
		return nil, err
	}

	result := &ClockOutResult{Carry: plan.Carry, Deleted: plan.DeletePrimary}
	if plan.DeletePrimary {
		l.log().Infow("deleted short shift", "employee", employee, "shift", plan.Primary.ID, "duration", plan.Primary.Duration)
		if plan.Warn {
			result.Warning = invalid(ErrInvalidInterval, "duration",
				fmt.Sprintf("a shift cannot be shorter than %s, it was deleted", l.Policy.MinDuration))
		}
	} else {
		result.Shift = &plan.Primary
	}
	if plan.Carry != nil {
		l.log().Infow("split shift at midnight", "employee", employee, "shift", plan.Primary.ID, "carry", plan.Carry.ID)
	}
	return result, nil
}

// ClockOutPlan is the outcome of finishing a shift, before persistence.
type ClockOutPlan struct {
	Primary       Shift
	Carry         *Shift
	DeletePrimary bool
	Warn          bool
}

// PlanClockOut computes rounding, the midnight split and the short-shift
// deletion for s finishing at finishedAt. The carry-over shift has no ID.
// The pause is charged to the primary shift up to its length and the rest
// to the carry-over.
func PlanClockOut(s Shift, finishedAt time.Time, p Policy) ClockOutPlan {
	origStart := s.Started
	rounded := RoundInterval(Interval{Start: origStart, Finish: finishedAt.In(origStart.Location())}, p.Quantum)
	end := rounded.Finish

	primary := s
	primary.Started = rounded.Start

	var carry *Shift
	if SameDay(origStart, end) {
		primary.Finished = &end
	} else {
		clamp := p.dayEnd(origStart)
		primary.Finished = &clamp

		next := NextDay(origStart)
		carryEnd := end
		if !SameDay(next, end) {
			carryEnd = p.dayEnd(next)
		}
		if carryEnd.Sub(next) >= p.MinDuration {
			carry = &Shift{
				EmployeeID: s.EmployeeID,
				ContractID: s.ContractID,
				Started:    next,
				Finished:   &carryEnd,
				Tags:       append([]string(nil), s.Tags...),
				Note:       s.Note,
				Key:        s.Key,
			}
		}
	}

	span := max(primary.Finished.Sub(primary.Started), 0)
	primary.PauseDuration = min(s.PauseDuration, span)
	primary.Recompute()
	if carry != nil {
		carry.PauseDuration = min(s.PauseDuration-primary.PauseDuration, carry.Finished.Sub(carry.Started))
		carry.Recompute()
	}

	plan := ClockOutPlan{Primary: primary, Carry: carry}
	if span < p.MinDuration {
		plan.DeletePrimary = true
		plan.Warn = NextDay(origStart).Sub(origStart) > p.MidnightGrace
	}
	return plan
}

// =============================================================================
// HELPERS
// =============================================================================

// employeeLocks hands out one mutex per employee and frees it when unused.
type employeeLocks struct {
	mu    sync.Mutex
	locks map[EmployeeID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (el *employeeLocks) lock(employee EmployeeID) func() {
	el.mu.Lock()
	if el.locks == nil {
		el.locks = make(map[EmployeeID]*refMutex)
	}
	m, ok := el.locks[employee]
	if !ok {
		m = &refMutex{}
		el.locks[employee] = m
	}
	m.refs++
	el.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		el.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(el.locks, employee)
		}
		el.mu.Unlock()
	}
}

func orNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}

func (l *Lifecycle) log() *zap.SugaredLogger { return orNop(l.Log) }
