package leave_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/leave-engine/leave"
)

// =============================================================================
// TIME-IN-LIEU TESTS
// =============================================================================

func TestLieu_GrantAndBalance(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	admin := seedEmployee(t, store, "admin-1", "Morgan")
	svc := leave.NewLieuService(store).WithClock(fixedClock(midYear2025))
	ctx := context.Background()

	adj, err := svc.Grant(ctx, emp, year.ID, leave.NewDays(1.5), "release weekend", admin)
	require.NoError(t, err)
	assert.Equal(t, "Morgan", adj.AddedByName)
	assert.False(t, adj.Correction)

	balance, err := svc.Balance(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(leave.NewDays(1.5)))
}

func TestLieu_GrantGuards(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := leave.NewLieuService(store)
	ctx := context.Background()

	// Below the half-day minimum
	_, err := svc.Grant(ctx, emp, year.ID, leave.NewDays(0.25), "", "admin-1")
	assert.ErrorIs(t, err, leave.ErrInvalidAmount)

	// Not a half-day multiple
	_, err = svc.Grant(ctx, emp, year.ID, leave.NewDays(1.3), "", "admin-1")
	assert.ErrorIs(t, err, leave.ErrInvalidAmount)

	// Unknown year
	_, err = svc.Grant(ctx, emp, "no-such-year", leave.DaysFromInt(1), "", "admin-1")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestLieu_CorrectionCompensates(t *testing.T) {
	// GIVEN: A 2-day grant entered by mistake
	// WHEN: A 1-day correction is appended
	// THEN: The grant row is untouched, a negative row appears, and the
	//       balance nets to 1

	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := leave.NewLieuService(store).WithClock(fixedClock(midYear2025))
	ctx := context.Background()

	_, err := svc.Grant(ctx, emp, year.ID, leave.DaysFromInt(2), "release weekend", "admin-1")
	require.NoError(t, err)
	_, err = svc.Correct(ctx, emp, year.ID, leave.DaysFromInt(1), "entered twice", "admin-1")
	require.NoError(t, err)

	history, err := svc.List(ctx, emp, year.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "history is append-only")

	balance, err := svc.Balance(ctx, emp, year.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(leave.DaysFromInt(1)), "balance: %s", balance)
}

func TestLieu_CorrectionRequiresReason(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := leave.NewLieuService(store)

	_, err := svc.Correct(context.Background(), emp, year.ID, leave.DaysFromInt(1), "", "admin-1")
	var ve *leave.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLieu_GrantsAreAudited(t *testing.T) {
	store := newTestStore(t)
	year := seedYear(t, store)
	emp := seedEmployee(t, store, "emp-1", "Alex")
	svc := leave.NewLieuService(store).WithClock(fixedClock(midYear2025))
	ctx := context.Background()

	adj, err := svc.Grant(ctx, emp, year.ID, leave.DaysFromInt(1), "on-call cover", "admin-1")
	require.NoError(t, err)

	records, err := store.ListAudit(ctx, string(adj.ID))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "LIEU_GRANT", records[0].Action)
	assert.Equal(t, leave.EmployeeID("admin-1"), records[0].ActorID)
}
