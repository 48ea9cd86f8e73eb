/*
policy.go - Entitlement Policy Store

PURPOSE:
  Reads and seeds per-(employee, year) entitlement policies, and applies
  audited administrative corrections. Policies are write-once at year
  open; a correction replaces the row AND writes an audit record with the
  actor and prior values, never a silent overwrite.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PolicyService manages entitlement policies.
type PolicyService struct {
	store TxStore
	now   func() time.Time
}

func NewPolicyService(store TxStore) *PolicyService {
	return &PolicyService{store: store, now: time.Now}
}

func (s *PolicyService) WithClock(now func() time.Time) *PolicyService {
	s.now = now
	return s
}

// Get returns the policy for (employee, year), or ErrNotFound.
func (s *PolicyService) Get(ctx context.Context, emp EmployeeID, year LeaveYearID) (*EntitlementPolicy, error) {
	return s.store.GetPolicy(ctx, emp, year)
}

// Seed creates the policy when the year is opened for the employee.
// Not used for corrections; see Correct.
func (s *PolicyService) Seed(ctx context.Context, emp EmployeeID, year LeaveYearID, allowance, carriedOver Days) (*EntitlementPolicy, error) {
	if _, err := s.store.GetYear(ctx, year); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := EntitlementPolicy{
		EmployeeID:  emp,
		LeaveYearID: year,
		AllowanceDays: allowance,
		CarriedOver: carriedOver,
		AdjustmentDays: ZeroDays(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SavePolicy(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PolicyCorrection carries the fields an administrator may change. Nil
// means leave unchanged.
type PolicyCorrection struct {
	AllowanceDays  *Days
	CarriedOver    *Days
	AdjustmentDays *Days
	Notes          *string
}

// Correct applies a manual correction to an existing policy, creating it
// with defaults first if missing (the original upserts). The prior values
// are preserved in the audit trail; the replace and the audit row commit
// together.
func (s *PolicyService) Correct(ctx context.Context, emp EmployeeID, year LeaveYearID, c PolicyCorrection, actor EmployeeID) (*EntitlementPolicy, error) {
	var result *EntitlementPolicy
	err := s.store.WithTx(ctx, func(st Store) error {
		now := s.now().UTC()

		p, err := st.GetPolicy(ctx, emp, year)
		created := false
		if errors.Is(err, ErrNotFound) {
			p = &EntitlementPolicy{
				EmployeeID:     emp,
				LeaveYearID:    year,
				AllowanceDays:  DaysFromInt(DefaultAllowanceDays),
				CarriedOver:    ZeroDays(),
				AdjustmentDays: ZeroDays(),
				CreatedAt:      now,
			}
			created = true
		} else if err != nil {
			return err
		}

		prior := fmt.Sprintf("allowance=%s carried_over=%s adjustment=%s",
			p.AllowanceDays, p.CarriedOver, p.AdjustmentDays)

		if c.AllowanceDays != nil {
			p.AllowanceDays = *c.AllowanceDays
		}
		if c.CarriedOver != nil {
			p.CarriedOver = *c.CarriedOver
		}
		if c.AdjustmentDays != nil {
			p.AdjustmentDays = *c.AdjustmentDays
		}
		if c.Notes != nil {
			p.Notes = *c.Notes
		}
		p.UpdatedAt = now

		if created {
			if err := st.SavePolicy(ctx, *p); err != nil {
				return err
			}
		} else {
			if err := st.ReplacePolicy(ctx, *p); err != nil {
				return err
			}
		}

		rec := AuditRecord{
			ID:        uuid.NewString(),
			Action:    "ADJUST_ALLOWANCE",
			ActorID:   actor,
			TargetID:  string(emp) + "/" + string(year),
			Detail:    fmt.Sprintf("policy corrected (was %s; now allowance=%s carried_over=%s adjustment=%s)", prior, p.AllowanceDays, p.CarriedOver, p.AdjustmentDays),
			CreatedAt: now,
		}
		if err := st.AppendAudit(ctx, rec); err != nil {
			return err
		}

		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
