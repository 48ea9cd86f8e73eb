package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/leave-engine/leave"
	"github.com/ledgerline/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// midYear2025 is a date safely inside the 2025-26 leave year.
var midYear2025 = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// seedYear registers the 1 Apr 2025 - 31 Mar 2026 leave year.
func seedYear(t *testing.T, store *sqlite.Store) leave.LeaveYear {
	registry := leave.NewYearRegistry(store).WithClock(fixedClock(midYear2025))
	year, err := registry.CreateYear(context.Background(),
		leave.Date(2025, time.April, 1), leave.Date(2026, time.March, 31))
	require.NoError(t, err)
	return *year
}

// seedEmployee creates a directory record.
func seedEmployee(t *testing.T, store *sqlite.Store, id, name string) leave.EmployeeID {
	err := store.SaveEmployee(context.Background(), leave.Employee{
		ID:        leave.EmployeeID(id),
		Name:      name,
		Email:     id + "@example.com",
		CreatedAt: midYear2025,
	})
	require.NoError(t, err)
	return leave.EmployeeID(id)
}

// seedPolicy opens the year for the employee with the given allowance
// and carry-over.
func seedPolicy(t *testing.T, store *sqlite.Store, emp leave.EmployeeID, year leave.LeaveYearID, allowance, carried float64) {
	svc := leave.NewPolicyService(store).WithClock(fixedClock(midYear2025))
	_, err := svc.Seed(context.Background(), emp, year, leave.NewDays(allowance), leave.NewDays(carried))
	require.NoError(t, err)
}

// newEntryService builds an entry service with no manager routing, so
// new requests start in "requested".
func newEntryService(store *sqlite.Store) *leave.EntryService {
	return leave.NewEntryService(store, store, leave.NoApprover, nil).WithClock(fixedClock(midYear2025))
}

// managedEntryService routes every employee's requests to the given
// manager.
func managedEntryService(store *sqlite.Store, manager leave.EmployeeID, name string) *leave.EntryService {
	lookup := func(context.Context, leave.EmployeeID) (leave.EmployeeID, string, error) {
		return manager, name, nil
	}
	return leave.NewEntryService(store, store, lookup, nil).WithClock(fixedClock(midYear2025))
}

// createEntry submits a request for the given weekday range and returns it.
func createEntry(t *testing.T, svc *leave.EntryService, emp leave.EmployeeID, year leave.LeaveYearID, typ leave.LeaveType, start, end time.Time) *leave.LeaveEntry {
	entry, err := svc.Create(context.Background(), leave.CreateInput{
		EmployeeID:  emp,
		LeaveYearID: year,
		Type:        typ,
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   emp,
	})
	require.NoError(t, err)
	return entry
}
