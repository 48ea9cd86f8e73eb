/*
entries.go - Leave entry state machine

PURPOSE:
  Governs the lifecycle of a leave request from creation through
  approval, rejection, and cancellation.

STATE MACHINE:

  create ──▶ requested ────────────────┐
       └──▶ pending_manager_approval ──┼──▶ approved ──▶ pending_cancellation
                   │                   │        │              │         │
                   ▼                   │        │          confirmed   denied
            needs_discussion ──────────┤        ▼              │         │
                                       │    cancelled ◀────────┘         ▼
                                       └──▶ rejected              (restored)

  rejected and cancelled are terminal. An approved absence needs
  counter-approval to reverse: downstream cover planning may already
  depend on it, so cancel moves it to pending_cancellation rather than
  straight to cancelled. Administrative override cancels directly.

APPROVAL ROUTING:
  Who approves whom is external. An ApproverLookup is injected; when it
  returns a manager the entry starts in pending_manager_approval,
  otherwise in requested. No routing rules live in the entry itself.

CONCURRENCY:
  Every transition reads and writes the entry inside one store
  transaction, and the write carries the version read. A lost race
  surfaces as InvalidTransition (status already moved) or
  ConcurrencyConflict (version moved), never as a corrupted state.

EVENTS:
  Every transition emits StatusChanged for the notification collaborator.
  The state machine itself sends nothing.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApproverLookup resolves the actor expected to approve an employee's
// leave. Empty means no manager is on record. Injected at the boundary;
// the original resolves this from the org chart.
type ApproverLookup func(ctx context.Context, emp EmployeeID) (id EmployeeID, name string, err error)

// NoApprover is the lookup used when manager routing is not configured.
func NoApprover(context.Context, EmployeeID) (EmployeeID, string, error) { return "", "", nil }

// EntryService is the leave entry state machine.
type EntryService struct {
	store    TxStore
	calendar HolidayCalendar
	approver ApproverLookup
	events   EventSink
	now      func() time.Time
}

func NewEntryService(store TxStore, calendar HolidayCalendar, approver ApproverLookup, events EventSink) *EntryService {
	if calendar == nil {
		calendar = NoHolidays{}
	}
	if approver == nil {
		approver = NoApprover
	}
	if events == nil {
		events = NopSink{}
	}
	return &EntryService{store: store, calendar: calendar, approver: approver, events: events, now: time.Now}
}

func (s *EntryService) WithClock(now func() time.Time) *EntryService {
	s.now = now
	return s
}

// =============================================================================
// CREATE
// =============================================================================

// CreateInput carries everything needed to open a leave request.
type CreateInput struct {
	EmployeeID  EmployeeID
	LeaveYearID LeaveYearID
	Type        LeaveType
	StartDate   time.Time
	EndDate     time.Time
	DayPart     DayPart // full_day unless a single-day AM/PM request
	Reason      string
	CreatedBy   EmployeeID // employee, or an administrator acting for them
}

// Create validates and persists a new leave request. Duration is computed
// once, here, from the working-day calendar, and never recomputed.
//
// Guards, in order: known type, end >= start, dates fully inside the
// target year, at least one working day, no overlap with another active
// entry for the employee, and the volunteer-day cap. The overlap and cap
// checks run in the same transaction as the insert so two racing creates
// cannot both pass.
func (s *EntryService) Create(ctx context.Context, in CreateInput) (*LeaveEntry, error) {
	if !ValidLeaveType(in.Type) {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown leave type %q", in.Type)}
	}
	start, end := DateOf(in.StartDate), DateOf(in.EndDate)
	if end.Before(start) {
		return nil, &RangeError{Start: start, End: end}
	}

	year, err := s.store.GetYear(ctx, in.LeaveYearID)
	if err != nil {
		return nil, err
	}
	if !year.ContainsRange(start, end) {
		return nil, fmt.Errorf("leave must fall within leave year %s (%s to %s): %w",
			year.Label(), year.StartDate.Format("2006-01-02"), year.EndDate.Format("2006-01-02"),
			ErrOutsideLeaveYear)
	}

	duration := Duration(start, end, in.DayPart, s.calendar)
	if duration.IsZero() {
		return nil, &ValidationError{Field: "start_date", Message: "range contains no working days"}
	}

	managerID, managerName, err := s.approver(ctx, in.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("approver lookup: %w", err)
	}
	status := StatusRequested
	if managerID != "" {
		status = StatusPendingManager
	}

	now := s.now().UTC()
	entry := LeaveEntry{
		ID:           EntryID(uuid.NewString()),
		EmployeeID:   in.EmployeeID,
		LeaveYearID:  in.LeaveYearID,
		Type:         in.Type,
		StartDate:    start,
		EndDate:      end,
		DurationDays: duration,
		Status:       status,
		DayPart:      normalizePart(in.DayPart),
		Reason:       in.Reason,
		ManagerID:    managerID,
		ManagerName:  managerName,
		CreatedByID:  in.CreatedBy,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.WithTx(ctx, func(st Store) error {
		existing, err := st.ListEntries(ctx, EntryFilter{EmployeeID: in.EmployeeID})
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.BlocksOverlap() && other.Overlaps(start, end) {
				return &OverlapError{
					EmployeeID: in.EmployeeID,
					ExistingID: other.ID,
					Start:      other.StartDate,
					End:        other.EndDate,
				}
			}
		}

		if in.Type == TypeVolunteer {
			if err := checkVolunteerCap(ctx, st, in.EmployeeID, in.LeaveYearID, duration, requestedCounts); err != nil {
				return err
			}
		}

		if err := st.CreateEntry(ctx, entry); err != nil {
			return err
		}
		return st.AppendAudit(ctx, AuditRecord{
			ID:        uuid.NewString(),
			Action:    "CREATE",
			ActorID:   in.CreatedBy,
			TargetID:  string(entry.ID),
			Detail:    fmt.Sprintf("created %s %s to %s (%s days)", in.Type, start.Format("2006-01-02"), end.Format("2006-01-02"), duration),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.EntryStatusChanged(StatusChanged{
		EntryID: entry.ID, EmployeeID: entry.EmployeeID,
		From: "", To: entry.Status, ActorID: in.CreatedBy, At: now,
	})
	return &entry, nil
}

func normalizePart(p DayPart) DayPart {
	if p == MorningHalf || p == AfternoonHalf {
		return p
	}
	return FullDay
}

// =============================================================================
// VOLUNTEER CAP
// =============================================================================

type capMode int

const (
	// requestedCounts: on create, requests already routed to a manager
	// also consume the cap, so an employee cannot queue volunteer
	// requests past the cap while earlier ones await a decision.
	requestedCounts capMode = iota
	// usedOnly: on approve, only days already committed count; the entry
	// being approved is added on top.
	usedOnly
)

func checkVolunteerCap(ctx context.Context, st Store, emp EmployeeID, year LeaveYearID, adding Days, mode capMode) error {
	entries, err := st.ListEntries(ctx, EntryFilter{EmployeeID: emp, LeaveYearID: year, Type: TypeVolunteer})
	if err != nil {
		return err
	}
	used := ZeroDays()
	for _, e := range entries {
		counts := e.Status.CountsAsUsed()
		if mode == requestedCounts {
			counts = counts || e.Status == StatusPendingManager
		}
		if counts {
			used = used.Add(e.DurationDays)
		}
	}
	limit := DaysFromInt(VolunteerDayCap)
	if used.Add(adding).GreaterThan(limit) {
		return &CapExceededError{EmployeeID: emp, Type: TypeVolunteer, Cap: limit, Used: used, Requested: adding}
	}
	return nil
}

// =============================================================================
// APPROVE / REJECT / NEEDS DISCUSSION
// =============================================================================

// Approve moves a pending entry to approved. Volunteer entries re-check
// the hard cap at approval time: of two racing approvals that together
// exceed the cap, exactly one fails with CapExceededError. Annual leave
// has no hard cap; over-allocation is permitted and surfaces as negative
// remaining on the summary.
func (s *EntryService) Approve(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "approve", func(ctx context.Context, st Store, e *LeaveEntry) error {
		if !e.Status.IsPendingApproval() {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "approve"}
		}
		if e.Type == TypeVolunteer {
			if err := checkVolunteerCapExcluding(ctx, st, e); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		e.Status = StatusApproved
		e.DecidedByID = actor
		e.DecidedAt = &now
		return nil
	})
}

// checkVolunteerCapExcluding counts committed volunteer days other than
// the entry being approved.
func checkVolunteerCapExcluding(ctx context.Context, st Store, entry *LeaveEntry) error {
	entries, err := st.ListEntries(ctx, EntryFilter{EmployeeID: entry.EmployeeID, LeaveYearID: entry.LeaveYearID, Type: TypeVolunteer})
	if err != nil {
		return err
	}
	used := ZeroDays()
	for _, e := range entries {
		if e.ID != entry.ID && e.Status.CountsAsUsed() {
			used = used.Add(e.DurationDays)
		}
	}
	limit := DaysFromInt(VolunteerDayCap)
	if used.Add(entry.DurationDays).GreaterThan(limit) {
		return &CapExceededError{EmployeeID: entry.EmployeeID, Type: TypeVolunteer, Cap: limit, Used: used, Requested: entry.DurationDays}
	}
	return nil
}

// Reject moves a pending entry to rejected (terminal).
func (s *EntryService) Reject(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "reject", func(_ context.Context, _ Store, e *LeaveEntry) error {
		if !e.Status.IsPendingApproval() {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "reject"}
		}
		now := s.now().UTC()
		e.Status = StatusRejected
		e.DecidedByID = actor
		e.DecidedAt = &now
		return nil
	})
}

// MarkNeedsDiscussion parks a request awaiting manager approval in the
// needs_discussion holding state ("speak to your line manager"). The
// manager must eventually approve or reject from there.
func (s *EntryService) MarkNeedsDiscussion(ctx context.Context, id EntryID, actor EmployeeID, notes string) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "mark for discussion", func(_ context.Context, _ Store, e *LeaveEntry) error {
		if e.Status != StatusPendingManager {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "mark for discussion"}
		}
		e.Status = StatusNeedsDiscussion
		e.ManagerNotes = notes
		return nil
	})
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel requests cancellation of an entry. A request no one has acted on
// is cancelled immediately. An approved, already-communicated absence
// moves to pending_cancellation and needs counter-approval to reverse.
// Calling Cancel again while pending confirms the cancellation.
func (s *EntryService) Cancel(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "cancel", func(_ context.Context, _ Store, e *LeaveEntry) error {
		switch {
		case e.Status.IsPendingApproval():
			e.Status = StatusCancelled
			e.StatusBeforeCancellation = ""
		case e.Status == StatusApproved:
			e.StatusBeforeCancellation = e.Status
			e.Status = StatusPendingCancellation
		case e.Status == StatusPendingCancellation:
			e.Status = StatusCancelled
			e.StatusBeforeCancellation = ""
		default:
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "cancel"}
		}
		return nil
	})
}

// ConfirmCancellation completes a pending cancellation.
func (s *EntryService) ConfirmCancellation(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "confirm cancellation", func(_ context.Context, _ Store, e *LeaveEntry) error {
		if e.Status != StatusPendingCancellation {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "confirm cancellation"}
		}
		e.Status = StatusCancelled
		e.StatusBeforeCancellation = ""
		return nil
	})
}

// DenyCancellation returns a pending cancellation to its prior status.
func (s *EntryService) DenyCancellation(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "deny cancellation", func(_ context.Context, _ Store, e *LeaveEntry) error {
		if e.Status != StatusPendingCancellation {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "deny cancellation"}
		}
		restored := e.StatusBeforeCancellation
		if restored == "" {
			restored = StatusApproved
		}
		e.Status = restored
		e.StatusBeforeCancellation = ""
		return nil
	})
}

// AdminCancel cancels an entry directly, skipping counter-approval.
// Administrative override for an absence that never happened.
func (s *EntryService) AdminCancel(ctx context.Context, id EntryID, actor EmployeeID) (*LeaveEntry, error) {
	return s.transition(ctx, id, actor, "cancel", func(_ context.Context, _ Store, e *LeaveEntry) error {
		if e.Status.IsTerminal() {
			return &TransitionError{EntryID: e.ID, From: e.Status, Attempt: "cancel"}
		}
		e.Status = StatusCancelled
		e.StatusBeforeCancellation = ""
		return nil
	})
}

// =============================================================================
// TRANSITION PLUMBING
// =============================================================================

var auditActions = map[EntryStatus]string{
	StatusApproved:            "APPROVE",
	StatusRejected:            "REJECT",
	StatusNeedsDiscussion:     "NEEDS_DISCUSSION",
	StatusPendingCancellation: "CANCEL_REQUESTED",
	StatusCancelled:           "CANCEL",
}

// transition runs a guarded read-mutate-write against one entry. The
// mutate callback inspects the current status and either mutates the
// entry or returns a typed guard error; the write carries the version
// that was read.
func (s *EntryService) transition(
	ctx context.Context,
	id EntryID,
	actor EmployeeID,
	attempt string,
	mutate func(ctx context.Context, st Store, e *LeaveEntry) error,
) (*LeaveEntry, error) {
	var result *LeaveEntry
	var from EntryStatus

	err := s.store.WithTx(ctx, func(st Store) error {
		entry, err := st.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		from = entry.Status
		readVersion := entry.Version

		if err := mutate(ctx, st, entry); err != nil {
			return err
		}

		now := s.now().UTC()
		entry.UpdatedAt = now
		entry.Version = readVersion + 1
		if err := st.UpdateEntry(ctx, *entry, readVersion); err != nil {
			return err
		}

		action := auditActions[entry.Status]
		if action == "" {
			action = "UPDATE"
		}
		if from == StatusPendingCancellation && entry.Status != StatusCancelled {
			action = "CANCEL_REJECTED"
		}
		if from == StatusPendingCancellation && entry.Status == StatusCancelled {
			action = "CANCEL_APPROVED"
		}
		if err := st.AppendAudit(ctx, AuditRecord{
			ID:        uuid.NewString(),
			Action:    action,
			ActorID:   actor,
			TargetID:  string(entry.ID),
			Detail:    fmt.Sprintf("%s: %s -> %s", attempt, from, entry.Status),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.EntryStatusChanged(StatusChanged{
		EntryID: result.ID, EmployeeID: result.EmployeeID,
		From: from, To: result.Status, ActorID: actor, At: result.UpdatedAt,
	})
	return result, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a single entry.
func (s *EntryService) Get(ctx context.Context, id EntryID) (*LeaveEntry, error) {
	return s.store.GetEntry(ctx, id)
}

// List returns entries matching the filter, ordered by start date.
func (s *EntryService) List(ctx context.Context, f EntryFilter) ([]LeaveEntry, error) {
	return s.store.ListEntries(ctx, f)
}
