package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/leave-engine/leave"
)

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestEntries_Create_ComputesDuration(t *testing.T) {
	// GIVEN: A request for Monday 2 June through Friday 6 June
	// WHEN: The entry is created
	// THEN: Duration is 5 working days, fixed on the entry

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))

	assert.True(t, entry.DurationDays.Equal(leave.DaysFromInt(5)), "got %s", entry.DurationDays)
	assert.Equal(t, leave.StatusRequested, entry.Status)
	assert.Equal(t, 1, entry.Version)
}

func TestEntries_Create_RoutesToManager(t *testing.T) {
	// GIVEN: An approver lookup that returns a manager
	// WHEN: The entry is created
	// THEN: It starts in pending_manager_approval with the manager recorded

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := managedEntryService(store, "mgr-1", "Morgan")

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))

	assert.Equal(t, leave.StatusPendingManager, entry.Status)
	assert.Equal(t, leave.EmployeeID("mgr-1"), entry.ManagerID)
	assert.Equal(t, "Morgan", entry.ManagerName)
}

func TestEntries_Create_Guards(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	// Unknown type
	_, err := svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: "gardening_leave",
		StartDate: leave.Date(2025, time.June, 2), EndDate: leave.Date(2025, time.June, 2),
		CreatedBy: emp,
	})
	var ve *leave.ValidationError
	assert.ErrorAs(t, err, &ve)

	// End before start
	_, err = svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeAnnual,
		StartDate: leave.Date(2025, time.June, 6), EndDate: leave.Date(2025, time.June, 2),
		CreatedBy: emp,
	})
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	// Outside the leave year
	_, err = svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeAnnual,
		StartDate: leave.Date(2026, time.March, 30), EndDate: leave.Date(2026, time.April, 2),
		CreatedBy: emp,
	})
	assert.ErrorIs(t, err, leave.ErrOutsideLeaveYear)

	// Weekend only, no working days
	_, err = svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeAnnual,
		StartDate: leave.Date(2025, time.June, 7), EndDate: leave.Date(2025, time.June, 8),
		CreatedBy: emp,
	})
	assert.ErrorAs(t, err, &ve)
}

func TestEntries_Create_RejectsOverlap(t *testing.T) {
	// GIVEN: An active entry for 2-6 June
	// WHEN: Requesting 5-9 June for the same employee
	// THEN: OverlapError naming the existing entry

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	existing := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))

	_, err := svc.Create(context.Background(), leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeAnnual,
		StartDate: leave.Date(2025, time.June, 5), EndDate: leave.Date(2025, time.June, 9),
		CreatedBy: emp,
	})
	assert.ErrorIs(t, err, leave.ErrEntryOverlap)

	var overlap *leave.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, existing.ID, overlap.ExistingID)
}

func TestEntries_Create_CancelledEntriesDoNotBlock(t *testing.T) {
	// GIVEN: A cancelled entry for 2-6 June
	// WHEN: Requesting the same dates again
	// THEN: The new request is accepted

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	old := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))
	_, err := svc.Cancel(ctx, old.ID, emp)
	require.NoError(t, err)

	createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))
}

func TestEntries_Create_NoBalanceCheck(t *testing.T) {
	// GIVEN: An employee with a 2-day allowance
	// WHEN: Requesting and approving 5 days of annual leave
	// THEN: Both succeed; annual leave is soft-capped and the deficit
	//       surfaces on the summary instead

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 2, 0)
	svc := newEntryService(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))
	_, err := svc.Approve(context.Background(), entry.ID, "admin-1")
	require.NoError(t, err)

	summary, err := leave.NewLedger(store).Summarize(context.Background(), emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.OverAllocated)
	assert.True(t, summary.Remaining.Equal(leave.DaysFromInt(-3)), "got %s", summary.Remaining)
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestEntries_ApproveRecordsDecision(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))

	approved, err := svc.Approve(context.Background(), entry.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, leave.EmployeeID("mgr-1"), approved.DecidedByID)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, 2, approved.Version)
}

func TestEntries_ApproveTerminalFails(t *testing.T) {
	// GIVEN: A rejected entry
	// WHEN: Approving it
	// THEN: ErrInvalidTransition; the entry stays rejected

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Reject(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, entry.ID, "mgr-1")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	got, err := svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
}

func TestEntries_NeedsDiscussionThenApprove(t *testing.T) {
	// GIVEN: A request routed to a manager
	// WHEN: The manager parks it for discussion, then approves
	// THEN: Both transitions succeed and the note is kept

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := managedEntryService(store, "mgr-1", "Morgan")
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))

	parked, err := svc.MarkNeedsDiscussion(ctx, entry.ID, "mgr-1", "come see me first")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusNeedsDiscussion, parked.Status)
	assert.Equal(t, "come see me first", parked.ManagerNotes)

	approved, err := svc.Approve(ctx, parked.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
}

func TestEntries_DiscussionOnlyFromManagerQueue(t *testing.T) {
	// A plain "requested" entry has no manager to speak to.

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))

	_, err := svc.MarkNeedsDiscussion(context.Background(), entry.ID, "mgr-1", "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestEntries_CancelPendingIsImmediate(t *testing.T) {
	// GIVEN: A requested entry no one has acted on
	// WHEN: The employee cancels it
	// THEN: It goes straight to cancelled

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))

	cancelled, err := svc.Cancel(context.Background(), entry.ID, emp)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
}

func TestEntries_CancelApprovedNeedsCounterApproval(t *testing.T) {
	// GIVEN: An approved entry
	// WHEN: The employee cancels it
	// THEN: It moves to pending_cancellation, remembering the prior status

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	pending, err := svc.Cancel(ctx, entry.ID, emp)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPendingCancellation, pending.Status)
	assert.Equal(t, leave.StatusApproved, pending.StatusBeforeCancellation)
}

func TestEntries_ConfirmCancellation(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, entry.ID, emp)
	require.NoError(t, err)

	done, err := svc.ConfirmCancellation(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, done.Status)
}

func TestEntries_DenyCancellationRestoresStatus(t *testing.T) {
	// GIVEN: An approved entry with a pending cancellation
	// WHEN: The manager denies the cancellation
	// THEN: The entry returns to approved

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, entry.ID, emp)
	require.NoError(t, err)

	restored, err := svc.DenyCancellation(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, restored.Status)
	assert.Empty(t, restored.StatusBeforeCancellation)
}

func TestEntries_AdminCancelSkipsCounterApproval(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	cancelled, err := svc.AdminCancel(ctx, entry.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
}

// =============================================================================
// VOLUNTEER CAP TESTS
// =============================================================================

func TestEntries_VolunteerCapOnCreate(t *testing.T) {
	// GIVEN: 2 approved volunteer days (the full cap)
	// WHEN: Requesting one more volunteer day
	// THEN: CapExceededError

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeVolunteer,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeVolunteer,
		StartDate: leave.Date(2025, time.June, 9), EndDate: leave.Date(2025, time.June, 9),
		CreatedBy: emp,
	})
	assert.ErrorIs(t, err, leave.ErrCapExceeded)

	var capErr *leave.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Used.Equal(leave.DaysFromInt(2)))
}

func TestEntries_VolunteerCapRecheckedOnApprove(t *testing.T) {
	// GIVEN: Two pending 2-day volunteer requests that each fit the cap alone
	// WHEN: Both are approved
	// THEN: The second approval fails the cap re-check

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	first := createEntry(t, svc, emp, year.ID, leave.TypeVolunteer,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	second := createEntry(t, svc, emp, year.ID, leave.TypeVolunteer,
		leave.Date(2025, time.June, 9), leave.Date(2025, time.June, 10))

	_, err := svc.Approve(ctx, first.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, second.ID, "mgr-1")
	assert.ErrorIs(t, err, leave.ErrCapExceeded)
}

func TestEntries_VolunteerCap_ConcurrentApprovals(t *testing.T) {
	// GIVEN: Two pending volunteer requests totalling over the cap
	// WHEN: Two goroutines approve them concurrently
	// THEN: Exactly one succeeds; the other gets CapExceededError

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)

	first := createEntry(t, svc, emp, year.ID, leave.TypeVolunteer,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	second := createEntry(t, svc, emp, year.ID, leave.TypeVolunteer,
		leave.Date(2025, time.June, 9), leave.Date(2025, time.June, 10))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []leave.EntryID{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id leave.EntryID) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), id, "mgr-1")
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, leave.ErrCapExceeded)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one approval must lose the cap race")
}

// =============================================================================
// CONCURRENCY AND AUDIT
// =============================================================================

func TestEntries_StaleVersionWriteConflicts(t *testing.T) {
	// GIVEN: An entry read at version 1 that has since moved to version 2
	// WHEN: Writing with the stale expected version
	// THEN: ErrConcurrencyConflict

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := newEntryService(store)
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	stale := *entry
	stale.Status = leave.StatusRejected
	stale.Version = 2
	err = store.UpdateEntry(ctx, stale, 1)
	assert.ErrorIs(t, err, leave.ErrConcurrencyConflict)
}

type recordingSink struct {
	mu     sync.Mutex
	events []leave.StatusChanged
}

func (r *recordingSink) EntryStatusChanged(e leave.StatusChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) RolloverDone(leave.RolloverCompleted) {}

func TestEntries_TransitionsEmitEventsAndAudit(t *testing.T) {
	// GIVEN: A sink attached to the entry service
	// WHEN: An entry is created and approved
	// THEN: Both transitions are emitted and audited

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	sink := &recordingSink{}
	svc := leave.NewEntryService(store, store, leave.NoApprover, sink).WithClock(fixedClock(midYear2025))
	ctx := context.Background()

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 3))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	require.Len(t, sink.events, 2)
	assert.Equal(t, leave.StatusRequested, sink.events[0].To)
	assert.Equal(t, leave.StatusRequested, sink.events[1].From)
	assert.Equal(t, leave.StatusApproved, sink.events[1].To)

	records, err := store.ListAudit(ctx, string(entry.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	actions := []string{records[0].Action, records[1].Action}
	assert.Contains(t, actions, "CREATE")
	assert.Contains(t, actions, "APPROVE")
}
