/*
store.go - Persistence interfaces

PURPOSE:
  Defines the storage contracts the domain services depend on. The
  services never touch SQL; they speak these interfaces, which the
  store/sqlite package implements.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view of the
  store. Overlap checks, cap re-validation, and rollover all run inside
  WithTx so that validation and write commit or fail together.

SEE ALSO:
  - store/sqlite: the SQLite implementation
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// LEAVE YEARS
// =============================================================================

type YearStore interface {
	// CreateYear persists a new leave year.
	CreateYear(ctx context.Context, y LeaveYear) error

	// GetYear returns the year by ID, or ErrNotFound.
	GetYear(ctx context.Context, id LeaveYearID) (*LeaveYear, error)

	// ListYears returns all leave years, most recent start date first.
	ListYears(ctx context.Context) ([]LeaveYear, error)
}

// =============================================================================
// ENTITLEMENT POLICIES
// =============================================================================

type PolicyStore interface {
	// GetPolicy returns the policy for (employee, year), or ErrNotFound.
	GetPolicy(ctx context.Context, emp EmployeeID, year LeaveYearID) (*EntitlementPolicy, error)

	// SavePolicy inserts a policy. Fails if one already exists for the
	// (employee, year) pair.
	SavePolicy(ctx context.Context, p EntitlementPolicy) error

	// ReplacePolicy overwrites an existing policy. Callers must log the
	// correction through the audit store; the store itself does not.
	ReplacePolicy(ctx context.Context, p EntitlementPolicy) error

	// ListPoliciesForYear returns every employee's policy in the year.
	ListPoliciesForYear(ctx context.Context, year LeaveYearID) ([]EntitlementPolicy, error)
}

// =============================================================================
// LEAVE ENTRIES
// =============================================================================

// EntryFilter narrows ListEntries. Zero-valued fields are ignored.
type EntryFilter struct {
	EmployeeID  EmployeeID
	LeaveYearID LeaveYearID
	Type        LeaveType
	Status      EntryStatus
}

type EntryStore interface {
	// CreateEntry persists a new entry.
	CreateEntry(ctx context.Context, e LeaveEntry) error

	// GetEntry returns the entry by ID, or ErrNotFound.
	GetEntry(ctx context.Context, id EntryID) (*LeaveEntry, error)

	// ListEntries returns entries matching the filter, ordered by start date.
	ListEntries(ctx context.Context, f EntryFilter) ([]LeaveEntry, error)

	// UpdateEntry writes the entry's mutable fields, guarded by the
	// expected version. Returns ErrConcurrencyConflict when the row has
	// moved on since it was read.
	UpdateEntry(ctx context.Context, e LeaveEntry, expectedVersion int) error
}

// =============================================================================
// TIME-IN-LIEU ADJUSTMENTS
// =============================================================================

type LieuStore interface {
	// AddAdjustment appends a credit row. There is no update or delete.
	AddAdjustment(ctx context.Context, a LieuAdjustment) error

	// ListAdjustments returns adjustments for (employee, year), newest first.
	ListAdjustments(ctx context.Context, emp EmployeeID, year LeaveYearID) ([]LieuAdjustment, error)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayStore interface {
	HolidayCalendar
	SaveHoliday(ctx context.Context, h Holiday) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditRecord is one row of the append-only audit trail. Every state
// transition, policy correction, adjustment, and rollover writes one.
type AuditRecord struct {
	ID        string
	Action    string // CREATE, APPROVE, REJECT, CANCEL, CANCEL_REQUESTED, ...
	ActorID   EmployeeID
	TargetID  string // entry/policy/adjustment/year ID
	Detail    string
	CreatedAt time.Time
}

type AuditStore interface {
	AppendAudit(ctx context.Context, rec AuditRecord) error
	ListAudit(ctx context.Context, targetID string) ([]AuditRecord, error)
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

// RolloverRun records one rollover attempt for operator review.
type RolloverRun struct {
	ID          string
	FromYearID  LeaveYearID
	ToYearID    LeaveYearID
	Status      string // completed, failed
	Employees   int
	MaxCarry    Days
	Error       string
	CompletedAt time.Time
}

type RolloverRunStore interface {
	SaveRolloverRun(ctx context.Context, r RolloverRun) error
	ListRolloverRuns(ctx context.Context) ([]RolloverRun, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store bundles every persistence concern the services use.
type Store interface {
	YearStore
	PolicyStore
	EntryStore
	LieuStore
	EmployeeStore
	HolidayStore
	AuditStore
	RolloverRunStore
}

// TxStore adds transactional execution. The Store passed to fn sees and
// writes uncommitted state; fn returning an error rolls everything back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
