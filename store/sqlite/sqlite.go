/*
Package sqlite provides a SQLite-backed implementation of the shift stores.

PURPOSE:
  Implements shift.Store, shift.TxStore and shift.ContractStore on SQLite.
  The same schema runs on PostgreSQL with minor dialect changes.

KEY TABLES:
  contracts: employment contracts with quota and validity window
  shifts:    recorded and running shifts, one row per calendar-day piece

INDEXES:
  - idx_shifts_one_running: at most one open shift (finished IS NULL) per
    employee. A violation surfaces as shift.ErrRunningShiftExists.
  - idx_shifts_employee_started: overlap and listing queries (hot path)

TIMESTAMPS:
  Stored as fixed-width UTC strings so that SQL comparisons order them
  correctly. They are converted back into the store's location on load,
  which is the location the engine computes day boundaries in.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so that
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/clock.db", sqlite.WithLocation(loc))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - shift/store.go: Interface definitions
  - shift/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/clock/shift"
)

const (
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
	dateFormat = "2006-01-02"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc *time.Location
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the location loaded timestamps are converted into.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		department TEXT NOT NULL,
		department_short TEXT,
		minutes INTEGER NOT NULL DEFAULT 0,
		start_date TEXT,
		end_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_employee
		ON contracts(employee_id);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		contract_id TEXT REFERENCES contracts(id) ON DELETE CASCADE,
		started TEXT NOT NULL,
		finished TEXT,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		pause_started TEXT,
		pause_duration_ns INTEGER NOT NULL DEFAULT 0,
		tags_json TEXT,
		note TEXT,
		shift_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: an employee has at most one running shift
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_running
		ON shifts(employee_id) WHERE finished IS NULL;

	CREATE INDEX IF NOT EXISTS idx_shifts_employee_started
		ON shifts(employee_id, started);

	CREATE INDEX IF NOT EXISTS idx_shifts_contract
		ON shifts(contract_id) WHERE contract_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SHIFT STORE (shift.Store interface)
// =============================================================================

const shiftColumns = `id, employee_id, contract_id, started, finished, duration_ns,
	pause_started, pause_duration_ns, tags_json, note, shift_key, created_at`

func (s *Store) FindOverlapping(ctx context.Context, employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) ([]shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOverlapping(ctx, s.db, employee, contract, from, to)
}

func (s *Store) Save(ctx context.Context, sh *shift.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, s.db, sh)
}

func (s *Store) Delete(ctx context.Context, id shift.ShiftID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(ctx, s.db, id)
}

func (s *Store) FindRunning(ctx context.Context, employee shift.EmployeeID) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findRunning(ctx, s.db, employee)
}

func (s *Store) Get(ctx context.Context, id shift.ShiftID) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, id)
}

func (s *Store) List(ctx context.Context, f shift.ShiftFilter) ([]shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, s.db, f)
}

func (s *Store) save(ctx context.Context, db querier, sh *shift.Shift) error {
	tagsJSON, err := json.Marshal(sh.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		INSERT INTO shifts (` + shiftColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			contract_id = excluded.contract_id,
			started = excluded.started,
			finished = excluded.finished,
			duration_ns = excluded.duration_ns,
			pause_started = excluded.pause_started,
			pause_duration_ns = excluded.pause_duration_ns,
			tags_json = excluded.tags_json,
			note = excluded.note,
			shift_key = excluded.shift_key
	`

	_, err = db.ExecContext(ctx, query,
		sh.ID,
		sh.EmployeeID,
		nullContract(sh.ContractID),
		formatTime(sh.Started),
		nullTime(sh.Finished),
		int64(sh.Duration),
		nullTime(sh.PauseStarted),
		int64(sh.PauseDuration),
		string(tagsJSON),
		sh.Note,
		string(sh.Key),
		formatTime(sh.CreatedAt),
	)
	if err != nil {
		if isRunningShiftError(err) {
			return shift.ErrRunningShiftExists
		}
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, db querier, id shift.ShiftID) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM shifts WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}
	return nil
}

func (s *Store) findRunning(ctx context.Context, db querier, employee shift.EmployeeID) (*shift.Shift, error) {
	shifts, err := s.queryShifts(ctx, db,
		"SELECT "+shiftColumns+" FROM shifts WHERE employee_id = ? AND finished IS NULL",
		employee)
	if err != nil || len(shifts) == 0 {
		return nil, err
	}
	return &shifts[0], nil
}

func (s *Store) get(ctx context.Context, db querier, id shift.ShiftID) (*shift.Shift, error) {
	shifts, err := s.queryShifts(ctx, db, "SELECT "+shiftColumns+" FROM shifts WHERE id = ?", id)
	if err != nil || len(shifts) == 0 {
		return nil, err
	}
	return &shifts[0], nil
}

func (s *Store) findOverlapping(ctx context.Context, db querier, employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) ([]shift.Shift, error) {
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE employee_id = ?
		  AND finished IS NOT NULL
		  AND started < ? AND finished > ?
	`
	args := []any{employee, formatTime(to), formatTime(from)}
	if contract == nil {
		query += " AND contract_id IS NULL"
	} else {
		query += " AND contract_id = ?"
		args = append(args, string(*contract))
	}
	query += " ORDER BY started ASC"

	return s.queryShifts(ctx, db, query, args...)
}

func (s *Store) list(ctx context.Context, db querier, f shift.ShiftFilter) ([]shift.Shift, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	switch {
	case f.Unassigned:
		where = append(where, "contract_id IS NULL")
	case f.ContractID != nil:
		where = append(where, "contract_id = ?")
		args = append(args, string(*f.ContractID))
	}
	if !f.From.IsZero() {
		where = append(where, "started >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "started < ?")
		args = append(args, formatTime(f.To))
	}
	if f.FinishedOnly {
		where = append(where, "finished IS NOT NULL")
	}

	query := "SELECT " + shiftColumns + " FROM shifts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started ASC"

	return s.queryShifts(ctx, db, query, args...)
}

func (s *Store) queryShifts(ctx context.Context, db querier, query string, args ...any) ([]shift.Shift, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []shift.Shift
	for rows.Next() {
		sh, err := s.scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}

	return shifts, rows.Err()
}

func (s *Store) scanShift(rows *sql.Rows) (shift.Shift, error) {
	var (
		sh           shift.Shift
		contractID   sql.NullString
		started      string
		finished     sql.NullString
		durationNs   int64
		pauseStarted sql.NullString
		pauseNs      int64
		tagsJSON     sql.NullString
		note         sql.NullString
		key          string
		createdAt    string
	)

	err := rows.Scan(
		&sh.ID, &sh.EmployeeID, &contractID, &started, &finished, &durationNs,
		&pauseStarted, &pauseNs, &tagsJSON, &note, &key, &createdAt,
	)
	if err != nil {
		return sh, fmt.Errorf("failed to scan shift: %w", err)
	}

	if contractID.Valid {
		id := shift.ContractID(contractID.String)
		sh.ContractID = &id
	}
	if sh.Started, err = s.parseTime(started); err != nil {
		return sh, err
	}
	if sh.Finished, err = s.parseNullTime(finished); err != nil {
		return sh, err
	}
	if sh.PauseStarted, err = s.parseNullTime(pauseStarted); err != nil {
		return sh, err
	}
	if sh.CreatedAt, err = s.parseTime(createdAt); err != nil {
		return sh, err
	}
	sh.Duration = time.Duration(durationNs)
	sh.PauseDuration = time.Duration(pauseNs)
	sh.Note = note.String
	sh.Key = shift.ShiftKey(key)

	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &sh.Tags); err != nil {
			return sh, fmt.Errorf("failed to decode tags of shift %s: %w", sh.ID, err)
		}
	}

	return sh, nil
}

// =============================================================================
// TRANSACTIONAL STORE (shift.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store shift.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) FindOverlapping(ctx context.Context, employee shift.EmployeeID, contract *shift.ContractID, from, to time.Time) ([]shift.Shift, error) {
	return ts.parent.findOverlapping(ctx, ts.tx, employee, contract, from, to)
}

func (ts *txStore) Save(ctx context.Context, sh *shift.Shift) error {
	return ts.parent.save(ctx, ts.tx, sh)
}

func (ts *txStore) Delete(ctx context.Context, id shift.ShiftID) error {
	return ts.parent.delete(ctx, ts.tx, id)
}

func (ts *txStore) FindRunning(ctx context.Context, employee shift.EmployeeID) (*shift.Shift, error) {
	return ts.parent.findRunning(ctx, ts.tx, employee)
}

func (ts *txStore) Get(ctx context.Context, id shift.ShiftID) (*shift.Shift, error) {
	return ts.parent.get(ctx, ts.tx, id)
}

func (ts *txStore) List(ctx context.Context, f shift.ShiftFilter) ([]shift.Shift, error) {
	return ts.parent.list(ctx, ts.tx, f)
}

// =============================================================================
// CONTRACT STORE (shift.ContractStore interface)
// =============================================================================

const contractColumns = `id, employee_id, department, department_short, minutes,
	start_date, end_date, created_at`

// SaveContract inserts or updates a contract.
func (s *Store) SaveContract(ctx context.Context, c *shift.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			department = excluded.department,
			department_short = excluded.department_short,
			minutes = excluded.minutes,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.EmployeeID,
		c.Department,
		nullString(c.DepartmentShort),
		c.Minutes,
		nullDate(c.StartDate),
		nullDate(c.EndDate),
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// GetContract retrieves a contract by ID.
func (s *Store) GetContract(ctx context.Context, id shift.ContractID) (*shift.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts, err := s.queryContracts(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)
	if err != nil || len(contracts) == 0 {
		return nil, err
	}
	return &contracts[0], nil
}

// ListContracts returns all contracts of an employee.
func (s *Store) ListContracts(ctx context.Context, employee shift.EmployeeID) ([]shift.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContracts(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE employee_id = ? ORDER BY created_at ASC",
		employee)
}

// DeleteContract removes a contract. Its shifts are removed by the cascade.
func (s *Store) DeleteContract(ctx context.Context, id shift.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return nil
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]shift.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []shift.Contract
	for rows.Next() {
		var (
			c         shift.Contract
			short     sql.NullString
			startDate sql.NullString
			endDate   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.EmployeeID, &c.Department, &short, &c.Minutes,
			&startDate, &endDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.DepartmentShort = short.String
		if c.StartDate, err = s.parseNullDate(startDate); err != nil {
			return nil, err
		}
		if c.EndDate, err = s.parseNullDate(endDate); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = s.parseTime(createdAt); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}

	return contracts, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"shifts", "contracts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateFormat), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullContract(id *shift.ContractID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func (s *Store) parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t.In(s.loc), nil
}

func (s *Store) parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := s.parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) parseNullDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateFormat, value.String, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", value.String, err)
	}
	return &t, nil
}

// isRunningShiftError reports a violation of idx_shifts_one_running.
func isRunningShiftError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return strings.Contains(sqliteErr.Error(), "shifts.employee_id")
	}
	return false
}
