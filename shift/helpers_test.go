package shift_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/clock/shift"
	"github.com/warp/clock/shift/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var cet = time.FixedZone("CET", 3600)

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, cet)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, cet)
}

func ptr[T any](v T) *T { return &v }

type testEnv struct {
	store     *store.TxMemory
	clock     *shift.FixedClock
	lifecycle *shift.Lifecycle
	validator *shift.Validator
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	st := store.NewTxMemory()
	clock := shift.NewFixedClock(now)
	policy := shift.DefaultPolicy()
	return &testEnv{
		store:     st,
		clock:     clock,
		lifecycle: shift.NewLifecycle(st, st, clock, policy, nil),
		validator: shift.NewValidator(st, st, clock, policy, nil),
	}
}

func (e *testEnv) addContract(t *testing.T, employee shift.EmployeeID, start, end *time.Time) shift.ContractID {
	t.Helper()
	c := &shift.Contract{
		EmployeeID: employee,
		Department: "Library",
		Minutes:    600,
		StartDate:  start,
		EndDate:    end,
		CreatedAt:  e.clock.Now(),
	}
	require.NoError(t, shift.CreateContract(context.Background(), e.store, c))
	return c.ID
}

func (e *testEnv) addShift(t *testing.T, employee shift.EmployeeID, contract *shift.ContractID, start, finish time.Time) shift.Shift {
	t.Helper()
	s := shift.Shift{
		ID:         shift.NewShiftID(),
		EmployeeID: employee,
		ContractID: contract,
		Started:    start,
		Finished:   &finish,
		CreatedAt:  e.clock.Now(),
	}
	s.Recompute()
	require.NoError(t, e.store.Save(context.Background(), &s))
	return s
}

func (e *testEnv) shifts(t *testing.T, employee shift.EmployeeID) []shift.Shift {
	t.Helper()
	shifts, err := e.store.List(context.Background(), shift.ShiftFilter{EmployeeID: employee})
	require.NoError(t, err)
	return shifts
}
