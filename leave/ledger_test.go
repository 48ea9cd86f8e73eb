package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/leave-engine/leave"
)

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestLedger_BasicSummary(t *testing.T) {
	// GIVEN: A 25-day allowance, 5 approved annual days, 3 approved sick days
	// WHEN: Computing the summary
	// THEN: used=5, remaining=20, sick=3; sick leave never touches the allowance

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 0)
	svc := newEntryService(store)
	ctx := context.Background()

	annual := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))
	_, err := svc.Approve(ctx, annual.ID, "mgr-1")
	require.NoError(t, err)

	sick := createEntry(t, svc, emp, year.ID, leave.TypeSick,
		leave.Date(2025, time.June, 9), leave.Date(2025, time.June, 11))
	_, err = svc.Approve(ctx, sick.ID, "mgr-1")
	require.NoError(t, err)

	summary, err := leave.NewLedger(store).Summarize(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Used.Equal(leave.DaysFromInt(5)), "used: %s", summary.Used)
	assert.True(t, summary.Remaining.Equal(leave.DaysFromInt(20)), "remaining: %s", summary.Remaining)
	assert.True(t, summary.SickDays.Equal(leave.DaysFromInt(3)), "sick: %s", summary.SickDays)
	assert.False(t, summary.OverAllocated)
}

func TestLedger_PendingRequestsDoNotCount(t *testing.T) {
	// GIVEN: A 5-day request still awaiting a decision
	// WHEN: Computing the summary
	// THEN: used stays 0 until the request is approved

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 0)
	svc := newEntryService(store)

	createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))

	summary, err := leave.NewLedger(store).Summarize(context.Background(), emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Used.IsZero())
	assert.True(t, summary.Remaining.Equal(leave.DaysFromInt(25)))
}

func TestLedger_PendingCancellationStillCounts(t *testing.T) {
	// GIVEN: An approved 5-day absence whose cancellation is requested
	//        but not yet confirmed
	// WHEN: Computing the summary
	// THEN: The days still count as used; only confirmation releases them

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 0)
	svc := newEntryService(store)
	ctx := context.Background()
	ledger := leave.NewLedger(store)

	entry := createEntry(t, svc, emp, year.ID, leave.TypeAnnual,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 6))
	_, err := svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, entry.ID, emp)
	require.NoError(t, err)

	summary, err := ledger.Summarize(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Used.Equal(leave.DaysFromInt(5)), "pending cancellation must still count")

	_, err = svc.ConfirmCancellation(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	summary, err = ledger.Summarize(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Used.IsZero(), "confirmed cancellation releases the days")
}

func TestLedger_CarryOverAndAdjustmentExtendAllowance(t *testing.T) {
	// GIVEN: 25 allowance, 4 carried over, 1.5 manual adjustment
	// WHEN: Computing the summary
	// THEN: allowance=30.5

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 4)

	adj := leave.NewDays(1.5)
	_, err := leave.NewPolicyService(store).Correct(context.Background(), emp, year.ID,
		leave.PolicyCorrection{AdjustmentDays: &adj}, "admin-1")
	require.NoError(t, err)

	summary, err := leave.NewLedger(store).Summarize(context.Background(), emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Allowance.Equal(leave.NewDays(30.5)), "allowance: %s", summary.Allowance)
	assert.True(t, summary.CarriedOver.Equal(leave.DaysFromInt(4)))
}

func TestLedger_TimeInLieuNetsOffUsage(t *testing.T) {
	// GIVEN: 2 lieu days granted, 1 lieu day spent through an approved
	//        time_in_lieu_usage entry
	// WHEN: Computing the summary
	// THEN: timeInLieu=1 and remaining=allowance+1

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 0)
	ctx := context.Background()

	lieu := leave.NewLieuService(store).WithClock(fixedClock(midYear2025))
	_, err := lieu.Grant(ctx, emp, year.ID, leave.DaysFromInt(2), "release weekend", "admin-1")
	require.NoError(t, err)

	svc := newEntryService(store)
	usage := createEntry(t, svc, emp, year.ID, leave.TypeLieuUsage,
		leave.Date(2025, time.June, 2), leave.Date(2025, time.June, 2))
	_, err = svc.Approve(ctx, usage.ID, "mgr-1")
	require.NoError(t, err)

	summary, err := leave.NewLedger(store).Summarize(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.TimeInLieu.Equal(leave.DaysFromInt(1)), "lieu: %s", summary.TimeInLieu)
	assert.True(t, summary.Remaining.Equal(leave.DaysFromInt(26)), "remaining: %s", summary.Remaining)
	assert.True(t, summary.Used.IsZero(), "lieu usage must not consume the annual allowance")
}

func TestLedger_NoPolicyFallsBackToDefault(t *testing.T) {
	// GIVEN: An employee with entries but no seeded policy
	// WHEN: Computing the summary
	// THEN: The organisation default allowance applies

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")

	summary, err := leave.NewLedger(store).Summarize(context.Background(), emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Allowance.Equal(leave.DaysFromInt(leave.DefaultAllowanceDays)))
	assert.True(t, summary.Remaining.Equal(leave.DaysFromInt(25)))
}

func TestLedger_HalfDayEntry(t *testing.T) {
	// GIVEN: An approved single-day AM entry
	// WHEN: Computing the summary
	// THEN: used=0.5

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	seedPolicy(t, store, emp, year.ID, 25, 0)
	svc := newEntryService(store)
	ctx := context.Background()

	entry, err := svc.Create(ctx, leave.CreateInput{
		EmployeeID: emp, LeaveYearID: year.ID, Type: leave.TypeAnnual,
		StartDate: leave.Date(2025, time.June, 2), EndDate: leave.Date(2025, time.June, 2),
		DayPart: leave.MorningHalf, CreatedBy: emp,
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, entry.ID, "mgr-1")
	require.NoError(t, err)

	summary, err := leave.NewLedger(store).Summarize(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.Used.Equal(leave.NewDays(0.5)), "used: %s", summary.Used)
	assert.True(t, summary.Remaining.Equal(leave.NewDays(24.5)), "remaining: %s", summary.Remaining)
}

func TestLedger_SummarizeYear(t *testing.T) {
	// GIVEN: Two employees with policies in the year
	// WHEN: Summarising the whole year
	// THEN: One summary per policy, keyed by employee

	store := newTestStore(t)
	year := seedYear(t, store)
	a := seedEmployee(t, store, "emp-a", "Alex")
	b := seedEmployee(t, store, "emp-b", "Blake")
	seedPolicy(t, store, a, year.ID, 25, 0)
	seedPolicy(t, store, b, year.ID, 30, 2)

	summaries, err := leave.NewLedger(store).SummarizeYear(context.Background(), year.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[a].Allowance.Equal(leave.DaysFromInt(25)))
	assert.True(t, summaries[b].Allowance.Equal(leave.DaysFromInt(32)))
}

func TestLedger_UnknownYear(t *testing.T) {
	store := newTestStore(t)
	_, err := leave.NewLedger(store).Summarize(context.Background(), "emp-1", "no-such-year")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}
