// Package store provides in-memory implementations of the shift stores.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/clock/shift"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	shifts    map[shift.ShiftID]shift.Shift
	contracts map[shift.ContractID]shift.Contract
}

func NewMemory() *Memory {
	return &Memory{
		shifts:    make(map[shift.ShiftID]shift.Shift),
		contracts: make(map[shift.ContractID]shift.Contract),
	}
}

func (m *Memory) FindOverlapping(_ context.Context, employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) ([]shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlappingLocked(employee, contract, from, to), nil
}

func (m *Memory) Save(_ context.Context, s *shift.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(s)
}

func (m *Memory) Delete(_ context.Context, id shift.ShiftID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shifts, id)
	return nil
}

func (m *Memory) FindRunning(_ context.Context, employee shift.EmployeeID) (*shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findRunningLocked(employee), nil
}

func (m *Memory) Get(_ context.Context, id shift.ShiftID) (*shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id), nil
}

func (m *Memory) List(_ context.Context, f shift.ShiftFilter) ([]shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(f), nil
}

// Len returns the number of stored shifts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shifts)
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (m *Memory) SaveContract(_ context.Context, c *shift.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = *c
	return nil
}

func (m *Memory) GetContract(_ context.Context, id shift.ContractID) (*shift.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListContracts(_ context.Context, employee shift.EmployeeID) ([]shift.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []shift.Contract
	for _, c := range m.contracts {
		if c.EmployeeID == employee {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DeleteContract removes the contract and, like the SQL cascade, its shifts.
func (m *Memory) DeleteContract(_ context.Context, id shift.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contracts, id)
	for sid, s := range m.shifts {
		if s.ContractID != nil && *s.ContractID == id {
			delete(m.shifts, sid)
		}
	}
	return nil
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) saveLocked(s *shift.Shift) error {
	if s.Finished == nil {
		if running := m.findRunningLocked(s.EmployeeID); running != nil && running.ID != s.ID {
			return shift.ErrRunningShiftExists
		}
	}
	m.shifts[s.ID] = clone(*s)
	return nil
}

func (m *Memory) findRunningLocked(employee shift.EmployeeID) *shift.Shift {
	for _, s := range m.shifts {
		if s.EmployeeID == employee && s.Finished == nil {
			c := clone(s)
			return &c
		}
	}
	return nil
}

func (m *Memory) getLocked(id shift.ShiftID) *shift.Shift {
	s, ok := m.shifts[id]
	if !ok {
		return nil
	}
	c := clone(s)
	return &c
}

func (m *Memory) findOverlappingLocked(employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) []shift.Shift {
	var result []shift.Shift
	for _, s := range m.shifts {
		if s.EmployeeID != employee || s.Finished == nil || !s.SameContract(contract) {
			continue
		}
		if s.Started.Before(to) && s.Finished.After(from) {
			result = append(result, clone(s))
		}
	}
	sortByStart(result)
	return result
}

func (m *Memory) listLocked(f shift.ShiftFilter) []shift.Shift {
	var result []shift.Shift
	for _, s := range m.shifts {
		if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Unassigned && s.ContractID != nil {
			continue
		}
		if !f.Unassigned && f.ContractID != nil && !s.SameContract(f.ContractID) {
			continue
		}
		if !f.From.IsZero() && s.Started.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.Started.Before(f.To) {
			continue
		}
		if f.FinishedOnly && s.Finished == nil {
			continue
		}
		result = append(result, clone(s))
	}
	sortByStart(result)
	return result
}

func sortByStart(shifts []shift.Shift) {
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].Started.Before(shifts[j].Started) })
}

func clone(s shift.Shift) shift.Shift {
	if s.Finished != nil {
		f := *s.Finished
		s.Finished = &f
	}
	if s.PauseStarted != nil {
		p := *s.PauseStarted
		s.PauseStarted = &p
	}
	if s.ContractID != nil {
		c := *s.ContractID
		s.ContractID = &c
	}
	s.Tags = append([]string(nil), s.Tags...)
	return s
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(shift.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := make(map[shift.ShiftID]shift.Shift, len(tm.shifts))
	for k, v := range tm.shifts {
		snapshot[k] = v
	}

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.shifts = snapshot
		return err
	}
	return nil
}

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindOverlapping(_ context.Context, employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) ([]shift.Shift, error) {
	return tv.parent.findOverlappingLocked(employee, contract, from, to), nil
}

func (tv *txMemoryView) Save(_ context.Context, s *shift.Shift) error {
	return tv.parent.saveLocked(s)
}

func (tv *txMemoryView) Delete(_ context.Context, id shift.ShiftID) error {
	delete(tv.parent.shifts, id)
	return nil
}

func (tv *txMemoryView) FindRunning(_ context.Context, employee shift.EmployeeID) (*shift.Shift, error) {
	return tv.parent.findRunningLocked(employee), nil
}

func (tv *txMemoryView) Get(_ context.Context, id shift.ShiftID) (*shift.Shift, error) {
	return tv.parent.getLocked(id), nil
}

func (tv *txMemoryView) List(_ context.Context, f shift.ShiftFilter) ([]shift.Shift, error) {
	return tv.parent.listLocked(f), nil
}
