/*
store.go - Persistence interfaces for shifts and contracts

PURPOSE:
  Defines the narrow boundary between the engine and the database. The
  engine never issues queries itself; it asks for the shifts that could
  overlap a window, the running shift of an employee, and saves or deletes
  single rows.

KEY INTERFACES:
  Store:         Shift persistence
  TxStore:       Store + all-or-nothing execution of a function
  ContractStore: Contract persistence

RUNNING-SHIFT INVARIANT:
  At most one shift per employee may have Finished == nil. Implementations
  MUST enforce this at write time and return ErrRunningShiftExists, so two
  concurrent clock-ins cannot both succeed even across processes.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with a partial unique index
  - shift/store/memory.go: In-memory for testing

SEE ALSO:
  - overlap.go: consumes FindOverlapping
  - lifecycle.go: consumes FindRunning
*/
package shift

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Shift persistence
// =============================================================================

// ShiftFilter narrows List results. Zero values mean "no filter".
// Unassigned selects shifts without a contract and wins over ContractID.
type ShiftFilter struct {
	EmployeeID   EmployeeID
	ContractID   *ContractID
	Unassigned   bool
	From         time.Time
	To           time.Time
	FinishedOnly bool
}

type Store interface {
	// FindOverlapping returns the employee's shifts on the given contract
	// scope (nil = shifts without contract) that start before to and finish
	// after from. Running shifts are not returned.
	FindOverlapping(ctx context.Context, employee EmployeeID, contract *ContractID, from, to time.Time) ([]Shift, error)

	// Save inserts or updates a shift by ID.
	Save(ctx context.Context, s *Shift) error

	// Delete removes a shift. Deleting a missing shift is not an error.
	Delete(ctx context.Context, id ShiftID) error

	// FindRunning returns the open shift of the employee, or nil.
	FindRunning(ctx context.Context, employee EmployeeID) (*Shift, error)

	// Get returns a shift by ID, or nil.
	Get(ctx context.Context, id ShiftID) (*Shift, error)

	// List returns shifts matching the filter ordered by Started.
	List(ctx context.Context, f ShiftFilter) ([]Shift, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

type ContractStore interface {
	SaveContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	ListContracts(ctx context.Context, employee EmployeeID) ([]Contract, error)
	DeleteContract(ctx context.Context, id ContractID) error
}
