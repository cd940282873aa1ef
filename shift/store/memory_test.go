package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clock/shift"
	"github.com/warp/clock/shift/store"
)

var cet = time.FixedZone("CET", 3600)

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.March, day, hour, min, 0, 0, cet)
}

func finishedShift(employee shift.EmployeeID, contract *shift.ContractID, start, finish time.Time) *shift.Shift {
	s := &shift.Shift{
		ID:         shift.NewShiftID(),
		EmployeeID: employee,
		ContractID: contract,
		Started:    start,
		Finished:   &finish,
	}
	s.Recompute()
	return s
}

func TestMemory_OneRunningShiftPerEmployee(t *testing.T) {
	// GIVEN: alice has a running shift
	m := store.NewMemory()
	ctx := context.Background()
	running := &shift.Shift{ID: "r1", EmployeeID: "alice", Started: at(1, 8, 0)}
	require.NoError(t, m.Save(ctx, running))

	// WHEN: saving a second open shift
	err := m.Save(ctx, &shift.Shift{ID: "r2", EmployeeID: "alice", Started: at(1, 9, 0)})

	// THEN: rejected, but updating the first and other employees are fine
	assert.ErrorIs(t, err, shift.ErrRunningShiftExists)
	assert.NoError(t, m.Save(ctx, running))
	assert.NoError(t, m.Save(ctx, &shift.Shift{ID: "b1", EmployeeID: "bob", Started: at(1, 9, 0)}))

	got, err := m.FindRunning(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, shift.ShiftID("r1"), got.ID)
}

func TestMemory_FindOverlapping(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	c1 := shift.ContractID("c1")

	inside := finishedShift("alice", &c1, at(1, 8, 0), at(1, 10, 0))
	touching := finishedShift("alice", &c1, at(1, 12, 0), at(1, 13, 0))
	unassigned := finishedShift("alice", nil, at(1, 9, 0), at(1, 11, 0))
	for _, s := range []*shift.Shift{inside, touching, unassigned} {
		require.NoError(t, m.Save(ctx, s))
	}
	require.NoError(t, m.Save(ctx, &shift.Shift{ID: "run", EmployeeID: "alice", ContractID: &c1, Started: at(1, 9, 0)}))

	got, err := m.FindOverlapping(ctx, "alice", &c1, at(1, 9, 0), at(1, 12, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)

	got, err = m.FindOverlapping(ctx, "alice", nil, at(1, 9, 0), at(1, 12, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, unassigned.ID, got[0].ID)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	s := finishedShift("alice", nil, at(1, 8, 0), at(1, 10, 0))
	s.Tags = []string{"a"}
	require.NoError(t, m.Save(ctx, s))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Tags[0] = "changed"
	*got.Finished = at(1, 23, 0)

	again, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
	assert.True(t, at(1, 10, 0).Equal(*again.Finished))
}

func TestMemory_List(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	c1 := shift.ContractID("c1")
	require.NoError(t, m.Save(ctx, finishedShift("alice", &c1, at(2, 8, 0), at(2, 10, 0))))
	require.NoError(t, m.Save(ctx, finishedShift("alice", nil, at(1, 8, 0), at(1, 10, 0))))
	require.NoError(t, m.Save(ctx, finishedShift("alice", &c1, at(5, 8, 0), at(5, 10, 0))))
	require.NoError(t, m.Save(ctx, finishedShift("bob", &c1, at(2, 8, 0), at(2, 10, 0))))
	require.NoError(t, m.Save(ctx, &shift.Shift{ID: "run", EmployeeID: "alice", Started: at(3, 8, 0)}))

	all, err := m.List(ctx, shift.ShiftFilter{EmployeeID: "alice"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].Started.Before(all[1].Started), "ordered by start")

	byContract, err := m.List(ctx, shift.ShiftFilter{EmployeeID: "alice", ContractID: &c1})
	require.NoError(t, err)
	assert.Len(t, byContract, 2)

	unassigned, err := m.List(ctx, shift.ShiftFilter{EmployeeID: "alice", Unassigned: true, FinishedOnly: true})
	require.NoError(t, err)
	assert.Len(t, unassigned, 1)

	ranged, err := m.List(ctx, shift.ShiftFilter{EmployeeID: "alice", From: at(2, 0, 0), To: at(5, 0, 0)})
	require.NoError(t, err)
	assert.Len(t, ranged, 2, "From inclusive, To exclusive")
}

func TestMemory_DeleteContractCascades(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	c := &shift.Contract{ID: "c1", EmployeeID: "alice", Department: "Library"}
	require.NoError(t, m.SaveContract(ctx, c))
	require.NoError(t, m.Save(ctx, finishedShift("alice", &c.ID, at(1, 8, 0), at(1, 10, 0))))
	require.NoError(t, m.Save(ctx, finishedShift("alice", nil, at(1, 8, 0), at(1, 10, 0))))

	require.NoError(t, m.DeleteContract(ctx, c.ID))

	got, err := m.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, m.Len())
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: one stored shift
	tm := store.NewTxMemory()
	ctx := context.Background()
	kept := finishedShift("alice", nil, at(1, 8, 0), at(1, 10, 0))
	require.NoError(t, tm.Save(ctx, kept))

	// WHEN: a transaction deletes it, adds another, then fails
	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(st shift.Store) error {
		require.NoError(t, st.Delete(ctx, kept.ID))
		require.NoError(t, st.Save(ctx, finishedShift("alice", nil, at(2, 8, 0), at(2, 10, 0))))
		return boom
	})

	// THEN: nothing changed
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tm.Len())
	got, err := tm.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTxMemory_Commit(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(st shift.Store) error {
		if err := st.Save(ctx, finishedShift("alice", nil, at(1, 8, 0), at(1, 10, 0))); err != nil {
			return err
		}
		found, err := st.FindOverlapping(ctx, "alice", nil, at(1, 9, 0), at(1, 9, 30))
		if err != nil {
			return err
		}
		assert.Len(t, found, 1, "writes are visible inside the transaction")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, tm.Len())
}
