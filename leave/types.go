/*
Package leave implements leave-year entitlement tracking and the leave
request approval workflow.

PURPOSE:
  This package contains the core domain types and services for managing
  an organisation's annual leave: fiscal leave years, per-employee
  entitlement policies, leave requests with a guarded state machine,
  time-in-lieu credits, and the year-end rollover that carries forward a
  capped number of unused days.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A day quantity backed by decimal.Decimal (half-day granularity)
  - LeaveYear: A fiscal period [start, end], conventionally 1 Apr - 31 Mar
  - EntitlementPolicy: Per (employee, year) allowance and carry-over
  - LeaveEntry: A leave request with status lifecycle
  - LieuAdjustment: Append-only time-in-lieu credit

DESIGN PRINCIPLES:
  1. Derived balances: "remaining" is never stored, always computed
  2. Precision: decimal.Decimal everywhere, no float accumulation
  3. Immutability: history rows are never updated in place; entries are
     mutated only through status transitions, adjustments never at all
  4. Auditability: durationDays is fixed at creation and not recomputed

SEE ALSO:
  - entries.go: The request state machine
  - ledger.go: Balance computation from source records
  - rollover.go: Year-end carry-forward
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Day quantity with half-day granularity
// =============================================================================

// Days is a count of leave days. It wraps decimal.Decimal so that sums of
// half-day entries never drift the way float64 accumulation would.
type Days struct {
	value decimal.Decimal
}

func NewDays(v float64) Days          { return Days{value: decimal.NewFromFloat(v)} }
func DaysFromInt(v int) Days          { return Days{value: decimal.NewFromInt(int64(v))} }
func ZeroDays() Days                  { return Days{value: decimal.Zero} }
func DaysFromDecimal(d decimal.Decimal) Days { return Days{value: d} }

// ParseDays parses a decimal day string ("2.5"). Invalid input yields zero.
func ParseDays(s string) Days {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroDays()
	}
	return Days{value: d}
}

func (d Days) Add(o Days) Days        { return Days{value: d.value.Add(o.value)} }
func (d Days) Sub(o Days) Days        { return Days{value: d.value.Sub(o.value)} }
func (d Days) Neg() Days              { return Days{value: d.value.Neg()} }
func (d Days) IsZero() bool           { return d.value.IsZero() }
func (d Days) IsNegative() bool       { return d.value.IsNegative() }
func (d Days) IsPositive() bool       { return d.value.IsPositive() }
func (d Days) GreaterThan(o Days) bool { return d.value.GreaterThan(o.value) }
func (d Days) LessThan(o Days) bool    { return d.value.LessThan(o.value) }
func (d Days) Equal(o Days) bool       { return d.value.Equal(o.value) }
func (d Days) Decimal() decimal.Decimal { return d.value }
func (d Days) Float64() float64        { f, _ := d.value.Float64(); return f }
func (d Days) String() string          { return d.value.String() }

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

func (d Days) Max(o Days) Days {
	if d.GreaterThan(o) {
		return d
	}
	return o
}

// IsHalfDayMultiple reports whether the quantity is a multiple of 0.5.
// Leave is only ever booked in half-day increments.
func (d Days) IsHalfDayMultiple() bool {
	doubled := d.value.Mul(decimal.NewFromInt(2))
	return doubled.Equal(doubled.Truncate(0))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveYearID string
type EntryID string
type AdjustmentID string

// =============================================================================
// LEAVE YEAR
// =============================================================================

// LeaveYear is a fiscal period against which entitlement and usage are
// tracked. Exactly one year is "current" at a time: the one whose range
// contains today, or failing that the most recently created.
type LeaveYear struct {
	ID        LeaveYearID
	StartDate time.Time // inclusive, midnight UTC
	EndDate   time.Time // inclusive, midnight UTC
	CreatedAt time.Time
}

// Contains reports whether t falls inside the year [StartDate, EndDate].
// Comparison is at day granularity.
func (y LeaveYear) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(DateOf(y.StartDate)) && !d.After(DateOf(y.EndDate))
}

// ContainsRange reports whether [start, end] is fully inside the year.
func (y LeaveYear) ContainsRange(start, end time.Time) bool {
	return y.Contains(start) && y.Contains(end)
}

// Label renders the year as "2025-26".
func (y LeaveYear) Label() string {
	start := y.StartDate.Year()
	end := y.EndDate.Year()
	return labelFor(start, end)
}

// =============================================================================
// ENTITLEMENT POLICY
// =============================================================================

// DefaultAllowanceDays is the organisation-wide base annual entitlement.
const DefaultAllowanceDays = 25

// VolunteerDayCap is the hard per-year cap on volunteer leave.
const VolunteerDayCap = 2

// EntitlementPolicy is the per (employee, leave year) entitlement record.
// It is written once when the year is opened for the employee (at rollover
// or year creation) and mutated only by audited administrative correction.
type EntitlementPolicy struct {
	EmployeeID     EmployeeID
	LeaveYearID    LeaveYearID
	AllowanceDays  Days // base annual entitlement
	CarriedOver    Days // credit from the prior year, capped at rollover
	AdjustmentDays Days // manual correction credit (may be negative)
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalEntitlement is allowance + carry-over + manual adjustment.
func (p EntitlementPolicy) TotalEntitlement() Days {
	return p.AllowanceDays.Add(p.CarriedOver).Add(p.AdjustmentDays)
}

// =============================================================================
// LEAVE ENTRY
// =============================================================================

type LeaveType string

const (
	TypeAnnual    LeaveType = "annual_leave"
	TypeSick      LeaveType = "sick_leave"
	TypeVolunteer LeaveType = "volunteer_leave"
	TypeLieuUsage LeaveType = "time_in_lieu_usage"
)

// ValidLeaveType reports whether t is one of the known leave types.
func ValidLeaveType(t LeaveType) bool {
	switch t {
	case TypeAnnual, TypeSick, TypeVolunteer, TypeLieuUsage:
		return true
	}
	return false
}

// UsesAllowance reports whether the type consumes the annual allowance.
func (t LeaveType) UsesAllowance() bool { return t == TypeAnnual }

type EntryStatus string

const (
	StatusRequested           EntryStatus = "requested"
	StatusPendingManager      EntryStatus = "pending_manager_approval"
	StatusNeedsDiscussion     EntryStatus = "needs_discussion"
	StatusApproved            EntryStatus = "approved"
	StatusRejected            EntryStatus = "rejected"
	StatusPendingCancellation EntryStatus = "pending_cancellation"
	StatusCancelled           EntryStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s EntryStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// IsPendingApproval reports whether the entry is awaiting an approve or
// reject decision.
func (s EntryStatus) IsPendingApproval() bool {
	return s == StatusRequested || s == StatusPendingManager || s == StatusNeedsDiscussion
}

// CountsAsUsed reports whether the entry's days count against the balance.
// An absence pending cancellation still counts: the employee may still be
// away until the cancellation is confirmed.
func (s EntryStatus) CountsAsUsed() bool {
	return s == StatusApproved || s == StatusPendingCancellation
}

// DayPart distinguishes full-day and half-day single-day entries.
type DayPart string

const (
	FullDay DayPart = "full_day"
	MorningHalf DayPart = "AM"
	AfternoonHalf DayPart = "PM"
)

// LeaveEntry is an employee's request for a date range of a given type.
// Mutated only through state transitions; never deleted.
type LeaveEntry struct {
	ID          EntryID
	EmployeeID  EmployeeID
	LeaveYearID LeaveYearID
	Type        LeaveType
	StartDate   time.Time
	EndDate     time.Time

	// DurationDays is fixed at creation time and never recomputed, even if
	// the holiday calendar changes later. This preserves what was approved.
	DurationDays Days

	Status EntryStatus

	// StatusBeforeCancellation remembers what to restore if a pending
	// cancellation is denied.
	StatusBeforeCancellation EntryStatus

	DayPart     DayPart
	Reason      string
	ManagerID   EmployeeID // actor expected to approve; empty = none on record
	ManagerName string
	ManagerNotes string
	CreatedByID EmployeeID
	DecidedByID EmployeeID // actor of the most recent approve/reject
	DecidedAt   *time.Time

	// Version increments on every status transition; transitions carry the
	// expected version so a lost race surfaces as a conflict, not a
	// corrupted state.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether the entry's date range intersects [start, end].
func (e LeaveEntry) Overlaps(start, end time.Time) bool {
	return !DateOf(e.StartDate).After(DateOf(end)) && !DateOf(e.EndDate).Before(DateOf(start))
}

// BlocksOverlap reports whether the entry should prevent a new overlapping
// entry for the same employee. Rejected and cancelled entries do not.
func (e LeaveEntry) BlocksOverlap() bool {
	return !e.Status.IsTerminal()
}

// =============================================================================
// TIME-IN-LIEU ADJUSTMENT
// =============================================================================

// LieuAdjustment is an append-only time-in-lieu credit. Corrections are
// made by adding a compensating negative entry, never by editing history.
type LieuAdjustment struct {
	ID          AdjustmentID
	EmployeeID  EmployeeID
	LeaveYearID LeaveYearID
	Days        Days // positive for grants, negative for corrections
	Reason      string
	Correction  bool // true when this row compensates an earlier grant
	AddedByID   EmployeeID
	AddedByName string
	CreatedAt   time.Time
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the minimal directory record the subsystem needs: names are
// denormalised onto adjustments and entries for display and audit.
type Employee struct {
	ID        EmployeeID
	Name      string
	Email     string
	CreatedAt time.Time
}

// =============================================================================
// LEAVE SUMMARY - The user-facing balance view
// =============================================================================

// Summary is the computed balance for one employee in one leave year.
// It is derived on every call from source records; nothing here is stored.
type Summary struct {
	EmployeeID  EmployeeID
	LeaveYearID LeaveYearID

	Allowance   Days // policy allowance + carried over + adjustment
	CarriedOver Days
	TimeInLieu  Days // lieu credits minus approved lieu usage
	Used        Days // annual leave in approved/pending_cancellation
	Remaining   Days // allowance + timeInLieu - used; may be negative

	SickDays      Days
	VolunteerDays Days
	VolunteerCap  Days

	// OverAllocated flags a negative remaining balance. The system never
	// clamps it: a negative balance signals an approval error for an
	// administrator to catch.
	OverAllocated bool
}
