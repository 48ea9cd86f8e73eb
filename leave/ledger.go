/*
ledger.go - Leave ledger

PURPOSE:
  Computes the per-employee, per-year balance from source records on
  every call. No balance is ever stored, so there is nothing to drift
  out of sync when an entry changes status or an adjustment lands.

THE FORMULA:

  allowance  = policy.allowanceDays + policy.carriedOver + policy.adjustmentDays
  timeInLieu = sum(lieu adjustments) - sum(committed lieu-usage entries)
  used       = sum(committed annual leave entries)
  remaining  = allowance + timeInLieu - used

  "Committed" means approved or pending_cancellation. An absence whose
  cancellation has been requested but not confirmed still counts; the
  employee may still be away.

  remaining may be negative. Annual leave is soft-capped: approvals are
  never blocked on balance, and a negative remaining surfaces as
  OverAllocated for an administrator to resolve.

NO POLICY:
  An employee with entries but no policy row is summarised against the
  organisation default (25 days, nothing carried over), matching how the
  original presented employees whose policy had not been seeded yet.
*/
package leave

import "context"

// Ledger computes leave balances.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Summarize computes the balance for one employee in one leave year.
func (l *Ledger) Summarize(ctx context.Context, emp EmployeeID, year LeaveYearID) (*Summary, error) {
	if _, err := l.store.GetYear(ctx, year); err != nil {
		return nil, err
	}
	return summarize(ctx, l.store, emp, year)
}

// SummarizeYear computes balances for every employee who has a policy in
// the year, keyed by employee.
func (l *Ledger) SummarizeYear(ctx context.Context, year LeaveYearID) (map[EmployeeID]*Summary, error) {
	if _, err := l.store.GetYear(ctx, year); err != nil {
		return nil, err
	}
	policies, err := l.store.ListPoliciesForYear(ctx, year)
	if err != nil {
		return nil, err
	}
	out := make(map[EmployeeID]*Summary, len(policies))
	for _, p := range policies {
		s, err := summarize(ctx, l.store, p.EmployeeID, year)
		if err != nil {
			return nil, err
		}
		out[p.EmployeeID] = s
	}
	return out, nil
}

// summarize is the shared computation. It takes a Store rather than the
// Ledger so the rollover engine can run it against a transactional view.
func summarize(ctx context.Context, st Store, emp EmployeeID, year LeaveYearID) (*Summary, error) {
	allowance := DaysFromInt(DefaultAllowanceDays)
	carried := ZeroDays()
	policy, err := st.GetPolicy(ctx, emp, year)
	switch {
	case err == nil:
		allowance = policy.TotalEntitlement()
		carried = policy.CarriedOver
	case IsNotFound(err):
		// fall through to the default
	default:
		return nil, err
	}

	entries, err := st.ListEntries(ctx, EntryFilter{EmployeeID: emp, LeaveYearID: year})
	if err != nil {
		return nil, err
	}

	used := ZeroDays()
	sick := ZeroDays()
	volunteer := ZeroDays()
	lieuUsed := ZeroDays()
	for _, e := range entries {
		if !e.Status.CountsAsUsed() {
			continue
		}
		switch e.Type {
		case TypeAnnual:
			used = used.Add(e.DurationDays)
		case TypeSick:
			sick = sick.Add(e.DurationDays)
		case TypeVolunteer:
			volunteer = volunteer.Add(e.DurationDays)
		case TypeLieuUsage:
			lieuUsed = lieuUsed.Add(e.DurationDays)
		}
	}

	adjustments, err := st.ListAdjustments(ctx, emp, year)
	if err != nil {
		return nil, err
	}
	lieu := ZeroDays()
	for _, a := range adjustments {
		lieu = lieu.Add(a.Days)
	}
	lieu = lieu.Sub(lieuUsed)

	remaining := allowance.Add(lieu).Sub(used)

	return &Summary{
		EmployeeID:    emp,
		LeaveYearID:   year,
		Allowance:     allowance,
		CarriedOver:   carried,
		TimeInLieu:    lieu,
		Used:          used,
		Remaining:     remaining,
		SickDays:      sick,
		VolunteerDays: volunteer,
		VolunteerCap:  DaysFromInt(VolunteerDayCap),
		OverAllocated: remaining.IsNegative(),
	}, nil
}
