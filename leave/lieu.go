/*
lieu.go - Time-in-lieu adjustment log

PURPOSE:
  Append-only time-in-lieu credits. A grant records days earned working
  outside contracted hours; a mistake is fixed with a compensating
  negative row plus a mandatory reason, never by editing or deleting
  history. Spending earned lieu goes through the entry state machine as
  a time_in_lieu_usage request, not through this log.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LieuService manages the time-in-lieu adjustment log.
type LieuService struct {
	store TxStore
	now   func() time.Time
}

func NewLieuService(store TxStore) *LieuService {
	return &LieuService{store: store, now: time.Now}
}

func (s *LieuService) WithClock(now func() time.Time) *LieuService {
	s.now = now
	return s
}

// minLieuGrant is the smallest grant the original accepted.
var minLieuGrant = NewDays(0.5)

// Grant appends a time-in-lieu credit. Days must be at least half a day
// and in half-day increments.
func (s *LieuService) Grant(ctx context.Context, emp EmployeeID, year LeaveYearID, days Days, reason string, actor EmployeeID) (*LieuAdjustment, error) {
	if days.LessThan(minLieuGrant) {
		return nil, fmt.Errorf("grant must be at least %s days: %w", minLieuGrant, ErrInvalidAmount)
	}
	if !days.IsHalfDayMultiple() {
		return nil, fmt.Errorf("grant must be a half-day multiple, got %s: %w", days, ErrInvalidAmount)
	}
	return s.append(ctx, emp, year, days, reason, false, actor)
}

// Correct appends a compensating negative row. Days is the amount to
// remove (positive input, stored negated); a reason is mandatory.
func (s *LieuService) Correct(ctx context.Context, emp EmployeeID, year LeaveYearID, days Days, reason string, actor EmployeeID) (*LieuAdjustment, error) {
	if !days.IsPositive() || !days.IsHalfDayMultiple() {
		return nil, fmt.Errorf("correction must be a positive half-day multiple, got %s: %w", days, ErrInvalidAmount)
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "corrections require a reason"}
	}
	return s.append(ctx, emp, year, days.Neg(), reason, true, actor)
}

func (s *LieuService) append(ctx context.Context, emp EmployeeID, year LeaveYearID, days Days, reason string, correction bool, actor EmployeeID) (*LieuAdjustment, error) {
	if _, err := s.store.GetYear(ctx, year); err != nil {
		return nil, err
	}

	// Denormalise the actor's name for display; tolerate a missing
	// directory record.
	actorName := ""
	if who, err := s.store.GetEmployee(ctx, actor); err == nil {
		actorName = who.Name
	}

	now := s.now().UTC()
	adj := LieuAdjustment{
		ID:          AdjustmentID(uuid.NewString()),
		EmployeeID:  emp,
		LeaveYearID: year,
		Days:        days,
		Reason:      reason,
		Correction:  correction,
		AddedByID:   actor,
		AddedByName: actorName,
		CreatedAt:   now,
	}

	action := "LIEU_GRANT"
	if correction {
		action = "LIEU_CORRECTION"
	}
	err := s.store.WithTx(ctx, func(st Store) error {
		if err := st.AddAdjustment(ctx, adj); err != nil {
			return err
		}
		return st.AppendAudit(ctx, AuditRecord{
			ID:        uuid.NewString(),
			Action:    action,
			ActorID:   actor,
			TargetID:  string(adj.ID),
			Detail:    fmt.Sprintf("%s days for %s: %s", days, emp, reason),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

// List returns the adjustment history for (employee, year), newest first.
func (s *LieuService) List(ctx context.Context, emp EmployeeID, year LeaveYearID) ([]LieuAdjustment, error) {
	return s.store.ListAdjustments(ctx, emp, year)
}

// Balance is the net lieu credit from the log alone, before usage
// entries are netted off. The ledger subtracts committed usage.
func (s *LieuService) Balance(ctx context.Context, emp EmployeeID, year LeaveYearID) (Days, error) {
	adjustments, err := s.store.ListAdjustments(ctx, emp, year)
	if err != nil {
		return ZeroDays(), err
	}
	total := ZeroDays()
	for _, a := range adjustments {
		total = total.Add(a.Days)
	}
	return total, nil
}
