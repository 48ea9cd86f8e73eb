/*
rollover.go - Year-end rollover engine

PURPOSE:
  Closes out a leave year by creating the successor year and seeding a
  policy for every employee who had one, carrying forward a capped
  number of unused days.

THE CARRY RULE:

  carry = min(maxCarryOver, max(0, remaining))

  A negative balance (over-allocation) carries zero; debt is not carried
  into the new year, it is resolved by administrative correction in the
  old one. maxCarryOver is clamped to [0, 23] and defaults to 5.

ATOMICITY:
  Year creation and all policy seeds run in one store transaction. If
  seeding fails halfway, nothing is committed: no new year, no partial
  policies. The failed attempt is recorded in rollover_runs (outside the
  aborted transaction) for operator review.

CONCURRENCY:
  At most one rollover per source year runs at a time, guarded by an
  in-process keyed mutex. A second concurrent request fails fast with
  ErrRolloverInProgress instead of queueing.
*/
package leave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxCarryOver is the carry cap applied when none is given.
const DefaultMaxCarryOver = 5

// maxCarryOverCeiling bounds how high an administrator can set the cap.
const maxCarryOverCeiling = 23

// AllowanceBasis selects the new year's base allowance at rollover.
type AllowanceBasis string

const (
	// ResetToDefault gives every employee the organisation default.
	ResetToDefault AllowanceBasis = "reset_to_default"
	// CopyPrevious preserves each employee's prior-year allowance, for
	// organisations with negotiated individual entitlements.
	CopyPrevious AllowanceBasis = "copy_previous"
)

// RolloverInput configures one rollover run.
type RolloverInput struct {
	FromYearID   LeaveYearID
	MaxCarryOver *Days          // nil = DefaultMaxCarryOver; clamped to [0, 23]
	Basis        AllowanceBasis // empty = ResetToDefault
	Actor        EmployeeID
}

// RolloverResult reports what a completed run did.
type RolloverResult struct {
	RunID     string
	FromYear  LeaveYear
	ToYear    LeaveYear
	Employees int
	MaxCarry  Days
	Carried   map[EmployeeID]Days
}

// RolloverEngine performs year-end rollovers.
type RolloverEngine struct {
	store  TxStore
	events EventSink
	now    func() time.Time

	mu      sync.Mutex
	running map[LeaveYearID]bool
}

func NewRolloverEngine(store TxStore, events EventSink) *RolloverEngine {
	if events == nil {
		events = NopSink{}
	}
	return &RolloverEngine{
		store:   store,
		events:  events,
		now:     time.Now,
		running: make(map[LeaveYearID]bool),
	}
}

func (e *RolloverEngine) WithClock(now func() time.Time) *RolloverEngine {
	e.now = now
	return e
}

// acquire marks the source year as rolling over, or reports it busy.
func (e *RolloverEngine) acquire(year LeaveYearID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[year] {
		return false
	}
	e.running[year] = true
	return true
}

func (e *RolloverEngine) release(year LeaveYearID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, year)
}

// Run executes a rollover from the given source year. On failure nothing
// is committed to the year or policy tables and the error is recorded in
// the run history; the operator reviews and re-runs.
func (e *RolloverEngine) Run(ctx context.Context, in RolloverInput) (*RolloverResult, error) {
	if !e.acquire(in.FromYearID) {
		return nil, fmt.Errorf("source year %s: %w", in.FromYearID, ErrRolloverInProgress)
	}
	defer e.release(in.FromYearID)

	maxCarry := DaysFromInt(DefaultMaxCarryOver)
	if in.MaxCarryOver != nil {
		maxCarry = in.MaxCarryOver.Max(ZeroDays()).Min(DaysFromInt(maxCarryOverCeiling))
	}
	basis := in.Basis
	if basis == "" {
		basis = ResetToDefault
	}
	if basis != ResetToDefault && basis != CopyPrevious {
		return nil, &ValidationError{Field: "basis", Message: fmt.Sprintf("unknown allowance basis %q", basis)}
	}

	fromYear, err := e.store.GetYear(ctx, in.FromYearID)
	if err != nil {
		return nil, err
	}

	// The successor year: same day-of-year bounds shifted forward one year.
	toYear := LeaveYear{
		ID:        LeaveYearID(uuid.NewString()),
		StartDate: fromYear.StartDate.AddDate(1, 0, 0),
		EndDate:   fromYear.EndDate.AddDate(1, 0, 0),
		CreatedAt: e.now().UTC(),
	}

	result := &RolloverResult{
		FromYear: *fromYear,
		ToYear:   toYear,
		MaxCarry: maxCarry,
		Carried:  make(map[EmployeeID]Days),
	}

	err = e.store.WithTx(ctx, func(st Store) error {
		existing, err := st.ListYears(ctx)
		if err != nil {
			return err
		}
		for _, y := range existing {
			if !toYear.StartDate.After(y.EndDate) && !toYear.EndDate.Before(y.StartDate) {
				return &RolloverError{
					FromYear: in.FromYearID,
					Reason:   fmt.Sprintf("successor range intersects existing year %s", y.ID),
					Cause:    &YearOverlapError{ExistingID: y.ID, Start: y.StartDate, End: y.EndDate},
				}
			}
		}

		if err := st.CreateYear(ctx, toYear); err != nil {
			return &RolloverError{FromYear: in.FromYearID, Reason: "create successor year", Cause: err}
		}

		policies, err := st.ListPoliciesForYear(ctx, in.FromYearID)
		if err != nil {
			return &RolloverError{FromYear: in.FromYearID, Reason: "list source policies", Cause: err}
		}

		now := e.now().UTC()
		for _, p := range policies {
			summary, err := summarize(ctx, st, p.EmployeeID, in.FromYearID)
			if err != nil {
				return &RolloverError{FromYear: in.FromYearID, Reason: fmt.Sprintf("summarise %s", p.EmployeeID), Cause: err}
			}

			carry := summary.Remaining.Max(ZeroDays()).Min(maxCarry)

			allowance := DaysFromInt(DefaultAllowanceDays)
			if basis == CopyPrevious {
				allowance = p.AllowanceDays
			}

			next := EntitlementPolicy{
				EmployeeID:     p.EmployeeID,
				LeaveYearID:    toYear.ID,
				AllowanceDays:  allowance,
				CarriedOver:    carry,
				AdjustmentDays: ZeroDays(),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := st.SavePolicy(ctx, next); err != nil {
				return &RolloverError{FromYear: in.FromYearID, Reason: fmt.Sprintf("seed policy for %s", p.EmployeeID), Cause: err}
			}
			result.Carried[p.EmployeeID] = carry
			result.Employees++
		}

		return st.AppendAudit(ctx, AuditRecord{
			ID:        uuid.NewString(),
			Action:    "ROLLOVER",
			ActorID:   in.Actor,
			TargetID:  string(in.FromYearID),
			Detail:    fmt.Sprintf("rolled %d employees into %s (max carry %s)", result.Employees, toYear.Label(), maxCarry),
			CreatedAt: now,
		})
	})

	// Record the attempt outside the data transaction so a failed run
	// still leaves a trace.
	run := RolloverRun{
		ID:          uuid.NewString(),
		FromYearID:  in.FromYearID,
		ToYearID:    toYear.ID,
		Status:      "completed",
		Employees:   result.Employees,
		MaxCarry:    maxCarry,
		CompletedAt: e.now().UTC(),
	}
	if err != nil {
		run.Status = "failed"
		run.ToYearID = ""
		run.Employees = 0
		run.Error = err.Error()
	}
	if saveErr := e.store.SaveRolloverRun(ctx, run); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return nil, err
	}

	result.RunID = run.ID
	e.events.RolloverDone(RolloverCompleted{
		FromYearID: in.FromYearID,
		ToYearID:   toYear.ID,
		Employees:  result.Employees,
		At:         run.CompletedAt,
	})
	return result, nil
}

// Runs returns the rollover attempt history, newest first.
func (e *RolloverEngine) Runs(ctx context.Context) ([]RolloverRun, error) {
	return e.store.ListRolloverRuns(ctx)
}
