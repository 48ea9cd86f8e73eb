/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements leave.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  leave_years:      Fiscal leave years
  leave_policies:   Per (employee, year) entitlement, one row each
  leave_entries:    Leave requests with status and version
  lieu_adjustments: Append-only time-in-lieu credits
  employees:        Directory records
  holidays:         Working-day calendar exclusions
  audit_log:        Append-only action trail
  rollover_runs:    Rollover attempt history

APPEND-ONLY ENFORCEMENT:
  lieu_adjustments and audit_log have no UPDATE or DELETE statements.
  leave_entries are never deleted; status changes go through UpdateEntry,
  which is guarded by an expected version.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole transaction, so read-check-write sequences inside it are
  serialized. UpdateEntry's version guard is the backstop for races
  between separate service calls.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerline/leave-engine/leave"
)

// querier abstracts *sql.DB and *sql.Tx so every query helper works both
// directly and inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees (directory records)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL
	);

	-- Leave years
	CREATE TABLE IF NOT EXISTS leave_years (
		id TEXT PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Entitlement policies, one row per (employee, year)
	CREATE TABLE IF NOT EXISTS leave_policies (
		employee_id TEXT NOT NULL,
		leave_year_id TEXT NOT NULL,
		allowance_days TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		adjustment_days TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_year_id)
	);

	CREATE INDEX IF NOT EXISTS idx_policies_year
		ON leave_policies(leave_year_id);

	-- Leave entries
	CREATE TABLE IF NOT EXISTS leave_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_year_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration_days TEXT NOT NULL,
		status TEXT NOT NULL,
		status_before_cancellation TEXT,
		day_part TEXT NOT NULL,
		reason TEXT,
		manager_id TEXT,
		manager_name TEXT,
		manager_notes TEXT,
		created_by_id TEXT NOT NULL,
		decided_by_id TEXT,
		decided_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Balance computation and overlap checks (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_employee_year
		ON leave_entries(employee_id, leave_year_id);
	CREATE INDEX IF NOT EXISTS idx_entries_status
		ON leave_entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_dates
		ON leave_entries(employee_id, start_date, end_date);

	-- Time-in-lieu adjustments (append-only)
	CREATE TABLE IF NOT EXISTS lieu_adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_year_id TEXT NOT NULL,
		days TEXT NOT NULL,
		reason TEXT,
		correction INTEGER NOT NULL DEFAULT 0,
		added_by_id TEXT NOT NULL,
		added_by_name TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lieu_employee_year
		ON lieu_adjustments(employee_id, leave_year_id);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_target
		ON audit_log(target_id);

	-- Rollover run history
	CREATE TABLE IF NOT EXISTS rollover_runs (
		id TEXT PRIMARY KEY,
		from_year_id TEXT NOT NULL,
		to_year_id TEXT,
		status TEXT NOT NULL,
		employees INTEGER NOT NULL DEFAULT 0,
		max_carry TEXT NOT NULL,
		error TEXT,
		completed_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEAVE YEARS
// =============================================================================

func (s *Store) CreateYear(ctx context.Context, y leave.LeaveYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createYear(ctx, s.db, y)
}

func createYear(ctx context.Context, q querier, y leave.LeaveYear) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO leave_years (id, start_date, end_date, created_at) VALUES (?, ?, ?, ?)",
		string(y.ID), formatDate(y.StartDate), formatDate(y.EndDate), formatTime(y.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("leave year %s already exists: %w", y.ID, leave.ErrYearOverlap)
	}
	return err
}

func (s *Store) GetYear(ctx context.Context, id leave.LeaveYearID) (*leave.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getYear(ctx, s.db, id)
}

func getYear(ctx context.Context, q querier, id leave.LeaveYearID) (*leave.LeaveYear, error) {
	var y leave.LeaveYear
	var yearID, start, end, createdAt string

	err := q.QueryRowContext(ctx,
		"SELECT id, start_date, end_date, created_at FROM leave_years WHERE id = ?",
		string(id),
	).Scan(&yearID, &start, &end, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("leave year %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	y.ID = leave.LeaveYearID(yearID)
	y.StartDate = parseDate(start)
	y.EndDate = parseDate(end)
	y.CreatedAt = parseTime(createdAt)
	return &y, nil
}

func (s *Store) ListYears(ctx context.Context) ([]leave.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listYears(ctx, s.db)
}

func listYears(ctx context.Context, q querier) ([]leave.LeaveYear, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, start_date, end_date, created_at FROM leave_years ORDER BY start_date DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []leave.LeaveYear
	for rows.Next() {
		var y leave.LeaveYear
		var yearID, start, end, createdAt string
		if err := rows.Scan(&yearID, &start, &end, &createdAt); err != nil {
			return nil, err
		}
		y.ID = leave.LeaveYearID(yearID)
		y.StartDate = parseDate(start)
		y.EndDate = parseDate(end)
		y.CreatedAt = parseTime(createdAt)
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// ENTITLEMENT POLICIES
// =============================================================================

func (s *Store) GetPolicy(ctx context.Context, emp leave.EmployeeID, year leave.LeaveYearID) (*leave.EntitlementPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, emp, year)
}

func getPolicy(ctx context.Context, q querier, emp leave.EmployeeID, year leave.LeaveYearID) (*leave.EntitlementPolicy, error) {
	row := q.QueryRowContext(ctx, `
		SELECT employee_id, leave_year_id, allowance_days, carried_over, adjustment_days, notes, created_at, updated_at
		FROM leave_policies WHERE employee_id = ? AND leave_year_id = ?`,
		string(emp), string(year),
	)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy for %s in %s: %w", emp, year, leave.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*leave.EntitlementPolicy, error) {
	var p leave.EntitlementPolicy
	var empID, yearID, allowance, carried, adjustment string
	var notes sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&empID, &yearID, &allowance, &carried, &adjustment, &notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.EmployeeID = leave.EmployeeID(empID)
	p.LeaveYearID = leave.LeaveYearID(yearID)
	p.AllowanceDays = leave.ParseDays(allowance)
	p.CarriedOver = leave.ParseDays(carried)
	p.AdjustmentDays = leave.ParseDays(adjustment)
	p.Notes = notes.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *Store) SavePolicy(ctx context.Context, p leave.EntitlementPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePolicy(ctx, s.db, p)
}

func savePolicy(ctx context.Context, q querier, p leave.EntitlementPolicy) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_policies (employee_id, leave_year_id, allowance_days, carried_over, adjustment_days, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.EmployeeID), string(p.LeaveYearID),
		p.AllowanceDays.String(), p.CarriedOver.String(), p.AdjustmentDays.String(),
		nullString(p.Notes), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("policy for %s in %s already exists", p.EmployeeID, p.LeaveYearID)
	}
	return err
}

func (s *Store) ReplacePolicy(ctx context.Context, p leave.EntitlementPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replacePolicy(ctx, s.db, p)
}

func replacePolicy(ctx context.Context, q querier, p leave.EntitlementPolicy) error {
	res, err := q.ExecContext(ctx, `
		UPDATE leave_policies
		SET allowance_days = ?, carried_over = ?, adjustment_days = ?, notes = ?, updated_at = ?
		WHERE employee_id = ? AND leave_year_id = ?`,
		p.AllowanceDays.String(), p.CarriedOver.String(), p.AdjustmentDays.String(),
		nullString(p.Notes), formatTime(p.UpdatedAt),
		string(p.EmployeeID), string(p.LeaveYearID),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("policy for %s in %s: %w", p.EmployeeID, p.LeaveYearID, leave.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPoliciesForYear(ctx context.Context, year leave.LeaveYearID) ([]leave.EntitlementPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPoliciesForYear(ctx, s.db, year)
}

func listPoliciesForYear(ctx context.Context, q querier, year leave.LeaveYearID) ([]leave.EntitlementPolicy, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT employee_id, leave_year_id, allowance_days, carried_over, adjustment_days, notes, created_at, updated_at
		FROM leave_policies WHERE leave_year_id = ? ORDER BY employee_id`,
		string(year),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []leave.EntitlementPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// =============================================================================
// LEAVE ENTRIES
// =============================================================================

const entryColumns = `id, employee_id, leave_year_id, leave_type, start_date, end_date,
	duration_days, status, status_before_cancellation, day_part, reason,
	manager_id, manager_name, manager_notes, created_by_id, decided_by_id, decided_at,
	version, created_at, updated_at`

func (s *Store) CreateEntry(ctx context.Context, e leave.LeaveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntry(ctx, s.db, e)
}

func createEntry(ctx context.Context, q querier, e leave.LeaveEntry) error {
	var decidedAt sql.NullString
	if e.DecidedAt != nil {
		decidedAt = sql.NullString{String: formatTime(*e.DecidedAt), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.EmployeeID), string(e.LeaveYearID), string(e.Type),
		formatDate(e.StartDate), formatDate(e.EndDate),
		e.DurationDays.String(), string(e.Status), nullString(string(e.StatusBeforeCancellation)),
		string(e.DayPart), nullString(e.Reason),
		nullString(string(e.ManagerID)), nullString(e.ManagerName), nullString(e.ManagerNotes),
		string(e.CreatedByID), nullString(string(e.DecidedByID)), decidedAt,
		e.Version, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	return err
}

func (s *Store) GetEntry(ctx context.Context, id leave.EntryID) (*leave.LeaveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q querier, id leave.EntryID) (*leave.LeaveEntry, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM leave_entries WHERE id = ?", string(id),
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("leave entry %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntry(row rowScanner) (*leave.LeaveEntry, error) {
	var e leave.LeaveEntry
	var entryID, empID, yearID, leaveType, start, end, duration, status, dayPart string
	var beforeCancel, reason, managerID, managerName, managerNotes, decidedBy, decidedAt sql.NullString
	var createdBy, createdAt, updatedAt string

	err := row.Scan(&entryID, &empID, &yearID, &leaveType, &start, &end,
		&duration, &status, &beforeCancel, &dayPart, &reason,
		&managerID, &managerName, &managerNotes, &createdBy, &decidedBy, &decidedAt,
		&e.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.ID = leave.EntryID(entryID)
	e.EmployeeID = leave.EmployeeID(empID)
	e.LeaveYearID = leave.LeaveYearID(yearID)
	e.Type = leave.LeaveType(leaveType)
	e.StartDate = parseDate(start)
	e.EndDate = parseDate(end)
	e.DurationDays = leave.ParseDays(duration)
	e.Status = leave.EntryStatus(status)
	e.StatusBeforeCancellation = leave.EntryStatus(beforeCancel.String)
	e.DayPart = leave.DayPart(dayPart)
	e.Reason = reason.String
	e.ManagerID = leave.EmployeeID(managerID.String)
	e.ManagerName = managerName.String
	e.ManagerNotes = managerNotes.String
	e.CreatedByID = leave.EmployeeID(createdBy)
	e.DecidedByID = leave.EmployeeID(decidedBy.String)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		e.DecidedAt = &t
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, f leave.EntryFilter) ([]leave.LeaveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, f)
}

func listEntries(ctx context.Context, q querier, f leave.EntryFilter) ([]leave.LeaveEntry, error) {
	query := "SELECT " + entryColumns + " FROM leave_entries WHERE 1=1"
	var args []any
	if f.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, string(f.EmployeeID))
	}
	if f.LeaveYearID != "" {
		query += " AND leave_year_id = ?"
		args = append(args, string(f.LeaveYearID))
	}
	if f.Type != "" {
		query += " AND leave_type = ?"
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY start_date"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []leave.LeaveEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) UpdateEntry(ctx context.Context, e leave.LeaveEntry, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e, expectedVersion)
}

// updateEntry writes the entry's mutable fields guarded by the version
// read. Zero rows affected means either the row is gone or someone else
// moved it first.
func updateEntry(ctx context.Context, q querier, e leave.LeaveEntry, expectedVersion int) error {
	var decidedAt sql.NullString
	if e.DecidedAt != nil {
		decidedAt = sql.NullString{String: formatTime(*e.DecidedAt), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		UPDATE leave_entries
		SET status = ?, status_before_cancellation = ?, manager_notes = ?,
		    decided_by_id = ?, decided_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(e.Status), nullString(string(e.StatusBeforeCancellation)), nullString(e.ManagerNotes),
		nullString(string(e.DecidedByID)), decidedAt, e.Version, formatTime(e.UpdatedAt),
		string(e.ID), expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM leave_entries WHERE id = ?", string(e.ID),
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("leave entry %s: %w", e.ID, leave.ErrNotFound)
	}
	return fmt.Errorf("leave entry %s moved past version %d: %w", e.ID, expectedVersion, leave.ErrConcurrencyConflict)
}

// =============================================================================
// TIME-IN-LIEU ADJUSTMENTS
// =============================================================================

func (s *Store) AddAdjustment(ctx context.Context, a leave.LieuAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addAdjustment(ctx, s.db, a)
}

func addAdjustment(ctx context.Context, q querier, a leave.LieuAdjustment) error {
	correction := 0
	if a.Correction {
		correction = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO lieu_adjustments (id, employee_id, leave_year_id, days, reason, correction, added_by_id, added_by_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.EmployeeID), string(a.LeaveYearID),
		a.Days.String(), nullString(a.Reason), correction,
		string(a.AddedByID), nullString(a.AddedByName), formatTime(a.CreatedAt),
	)
	return err
}

func (s *Store) ListAdjustments(ctx context.Context, emp leave.EmployeeID, year leave.LeaveYearID) ([]leave.LieuAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAdjustments(ctx, s.db, emp, year)
}

func listAdjustments(ctx context.Context, q querier, emp leave.EmployeeID, year leave.LeaveYearID) ([]leave.LieuAdjustment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, employee_id, leave_year_id, days, reason, correction, added_by_id, added_by_name, created_at
		FROM lieu_adjustments WHERE employee_id = ? AND leave_year_id = ?
		ORDER BY created_at DESC`,
		string(emp), string(year),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []leave.LieuAdjustment
	for rows.Next() {
		var a leave.LieuAdjustment
		var adjID, empID, yearID, days, addedBy, createdAt string
		var reason, addedByName sql.NullString
		var correction int
		if err := rows.Scan(&adjID, &empID, &yearID, &days, &reason, &correction, &addedBy, &addedByName, &createdAt); err != nil {
			return nil, err
		}
		a.ID = leave.AdjustmentID(adjID)
		a.EmployeeID = leave.EmployeeID(empID)
		a.LeaveYearID = leave.LeaveYearID(yearID)
		a.Days = leave.ParseDays(days)
		a.Reason = reason.String
		a.Correction = correction != 0
		a.AddedByID = leave.EmployeeID(addedBy)
		a.AddedByName = addedByName.String
		a.CreatedAt = parseTime(createdAt)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, q querier, e leave.Employee) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email`,
		string(e.ID), e.Name, nullString(e.Email), formatTime(e.CreatedAt),
	)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, q querier, id leave.EmployeeID) (*leave.Employee, error) {
	var e leave.Employee
	var empID, name, createdAt string
	var email sql.NullString

	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, created_at FROM employees WHERE id = ?", string(id),
	).Scan(&empID, &name, &email, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("employee %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.ID = leave.EmployeeID(empID)
	e.Name = name
	e.Email = email.String
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db)
}

func listEmployees(ctx context.Context, q querier) ([]leave.Employee, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, email, created_at FROM employees ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		var e leave.Employee
		var empID, name, createdAt string
		var email sql.NullString
		if err := rows.Scan(&empID, &name, &email, &createdAt); err != nil {
			return nil, err
		}
		e.ID = leave.EmployeeID(empID)
		e.Name = name
		e.Email = email.String
		e.CreatedAt = parseTime(createdAt)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHoliday(ctx, s.db, h)
}

func saveHoliday(ctx context.Context, q querier, h leave.Holiday) error {
	recurring := 0
	if h.Recurring {
		recurring = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring`,
		h.ID, formatDate(h.Date), h.Name, recurring,
	)
	return err
}

func (s *Store) ListHolidays(ctx context.Context) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHolidays(ctx, s.db)
}

func listHolidays(ctx context.Context, q querier) ([]leave.Holiday, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, date, name, recurring FROM holidays ORDER BY date",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date string
		var recurring int
		if err := rows.Scan(&h.ID, &date, &h.Name, &recurring); err != nil {
			return nil, err
		}
		h.Date = parseDate(date)
		h.Recurring = recurring != 0
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// IsHoliday reports whether the date is a company holiday, matching
// recurring holidays by month and day. Query failures report false; the
// calendar degrades to weekends-only rather than blocking requests.
func (s *Store) IsHoliday(date time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isHoliday(s.db, date)
}

func isHoliday(q querier, date time.Time) bool {
	day := leave.DateOf(date)
	var count int
	err := q.QueryRowContext(context.Background(), `
		SELECT COUNT(*) FROM holidays
		WHERE date = ? OR (recurring = 1 AND substr(date, 6, 5) = ?)`,
		formatDate(day), day.Format("01-02"),
	).Scan(&count)
	return err == nil && count > 0
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, rec leave.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, rec)
}

func appendAudit(ctx context.Context, q querier, rec leave.AuditRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_id, target_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, string(rec.ActorID), rec.TargetID,
		nullString(rec.Detail), formatTime(rec.CreatedAt),
	)
	return err
}

func (s *Store) ListAudit(ctx context.Context, targetID string) ([]leave.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAudit(ctx, s.db, targetID)
}

func listAudit(ctx context.Context, q querier, targetID string) ([]leave.AuditRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, action, actor_id, target_id, detail, created_at
		FROM audit_log WHERE target_id = ? ORDER BY created_at DESC`,
		targetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []leave.AuditRecord
	for rows.Next() {
		var rec leave.AuditRecord
		var actorID, createdAt string
		var detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Action, &actorID, &rec.TargetID, &detail, &createdAt); err != nil {
			return nil, err
		}
		rec.ActorID = leave.EmployeeID(actorID)
		rec.Detail = detail.String
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (s *Store) SaveRolloverRun(ctx context.Context, r leave.RolloverRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRolloverRun(ctx, s.db, r)
}

func saveRolloverRun(ctx context.Context, q querier, r leave.RolloverRun) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rollover_runs (id, from_year_id, to_year_id, status, employees, max_carry, error, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.FromYearID), nullString(string(r.ToYearID)), r.Status,
		r.Employees, r.MaxCarry.String(), nullString(r.Error), formatTime(r.CompletedAt),
	)
	return err
}

func (s *Store) ListRolloverRuns(ctx context.Context) ([]leave.RolloverRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRolloverRuns(ctx, s.db)
}

func listRolloverRuns(ctx context.Context, q querier) ([]leave.RolloverRun, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, from_year_id, to_year_id, status, employees, max_carry, error, completed_at
		FROM rollover_runs ORDER BY completed_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []leave.RolloverRun
	for rows.Next() {
		var r leave.RolloverRun
		var fromYear, maxCarry, completedAt string
		var toYear, runErr sql.NullString
		if err := rows.Scan(&r.ID, &fromYear, &toYear, &r.Status, &r.Employees, &maxCarry, &runErr, &completedAt); err != nil {
			return nil, err
		}
		r.FromYearID = leave.LeaveYearID(fromYear)
		r.ToYearID = leave.LeaveYearID(toYear.String)
		r.MaxCarry = leave.ParseDays(maxCarry)
		r.Error = runErr.String
		r.CompletedAt = parseTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The write
// lock is held for the duration, so read-check-write sequences inside
// fn are serialized against all other store access.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks. It runs
// every operation against the open *sql.Tx and takes no locks; WithTx
// already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

var _ leave.Store = (*txStore)(nil)

func (ts *txStore) CreateYear(ctx context.Context, y leave.LeaveYear) error {
	return createYear(ctx, ts.tx, y)
}

func (ts *txStore) GetYear(ctx context.Context, id leave.LeaveYearID) (*leave.LeaveYear, error) {
	return getYear(ctx, ts.tx, id)
}

func (ts *txStore) ListYears(ctx context.Context) ([]leave.LeaveYear, error) {
	return listYears(ctx, ts.tx)
}

func (ts *txStore) GetPolicy(ctx context.Context, emp leave.EmployeeID, year leave.LeaveYearID) (*leave.EntitlementPolicy, error) {
	return getPolicy(ctx, ts.tx, emp, year)
}

func (ts *txStore) SavePolicy(ctx context.Context, p leave.EntitlementPolicy) error {
	return savePolicy(ctx, ts.tx, p)
}

func (ts *txStore) ReplacePolicy(ctx context.Context, p leave.EntitlementPolicy) error {
	return replacePolicy(ctx, ts.tx, p)
}

func (ts *txStore) ListPoliciesForYear(ctx context.Context, year leave.LeaveYearID) ([]leave.EntitlementPolicy, error) {
	return listPoliciesForYear(ctx, ts.tx, year)
}

func (ts *txStore) CreateEntry(ctx context.Context, e leave.LeaveEntry) error {
	return createEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id leave.EntryID) (*leave.LeaveEntry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) ListEntries(ctx context.Context, f leave.EntryFilter) ([]leave.LeaveEntry, error) {
	return listEntries(ctx, ts.tx, f)
}

func (ts *txStore) UpdateEntry(ctx context.Context, e leave.LeaveEntry, expectedVersion int) error {
	return updateEntry(ctx, ts.tx, e, expectedVersion)
}

func (ts *txStore) AddAdjustment(ctx context.Context, a leave.LieuAdjustment) error {
	return addAdjustment(ctx, ts.tx, a)
}

func (ts *txStore) ListAdjustments(ctx context.Context, emp leave.EmployeeID, year leave.LeaveYearID) ([]leave.LieuAdjustment, error) {
	return listAdjustments(ctx, ts.tx, emp, year)
}

func (ts *txStore) SaveEmployee(ctx context.Context, e leave.Employee) error {
	return saveEmployee(ctx, ts.tx, e)
}

func (ts *txStore) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, ts.tx)
}

func (ts *txStore) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	return saveHoliday(ctx, ts.tx, h)
}

func (ts *txStore) ListHolidays(ctx context.Context) ([]leave.Holiday, error) {
	return listHolidays(ctx, ts.tx)
}

func (ts *txStore) IsHoliday(date time.Time) bool {
	return isHoliday(ts.tx, date)
}

func (ts *txStore) AppendAudit(ctx context.Context, rec leave.AuditRecord) error {
	return appendAudit(ctx, ts.tx, rec)
}

func (ts *txStore) ListAudit(ctx context.Context, targetID string) ([]leave.AuditRecord, error) {
	return listAudit(ctx, ts.tx, targetID)
}

func (ts *txStore) SaveRolloverRun(ctx context.Context, r leave.RolloverRun) error {
	return saveRolloverRun(ctx, ts.tx, r)
}

func (ts *txStore) ListRolloverRuns(ctx context.Context) ([]leave.RolloverRun, error) {
	return listRolloverRuns(ctx, ts.tx)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
