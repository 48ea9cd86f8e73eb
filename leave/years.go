/*
years.go - Leave Year Registry

PURPOSE:
  Owns the set of leave years and which one is current. Creating a year
  here does NOT seed entitlement policies for every employee; that is the
  rollover engine's job. A bare CreateYear establishes the very first
  year or performs a manual correction.

CURRENT YEAR:
  "Current" is a pure function of now plus the registered years: the year
  whose range contains now, or failing that the most recently created.
  There is no mutable current-year flag to drift out of date.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// YearRegistry manages leave years.
type YearRegistry struct {
	store TxStore
	now   func() time.Time
}

func NewYearRegistry(store TxStore) *YearRegistry {
	return &YearRegistry{store: store, now: time.Now}
}

// WithClock overrides the registry's notion of now. Tests use this to
// pin the current year.
func (r *YearRegistry) WithClock(now func() time.Time) *YearRegistry {
	r.now = now
	return r
}

// CreateYear registers a new leave year covering [start, end]. Fails with
// ErrInvalidRange when end is not after start and with ErrYearOverlap
// when the range intersects an existing year. The overlap check and the
// insert run in one transaction so two racing creates cannot both pass.
func (r *YearRegistry) CreateYear(ctx context.Context, start, end time.Time) (*LeaveYear, error) {
	start, end = DateOf(start), DateOf(end)
	if !end.After(start) {
		return nil, &RangeError{Start: start, End: end}
	}

	year := LeaveYear{
		ID:        LeaveYearID(uuid.NewString()),
		StartDate: start,
		EndDate:   end,
		CreatedAt: r.now().UTC(),
	}

	err := r.store.WithTx(ctx, func(s Store) error {
		existing, err := s.ListYears(ctx)
		if err != nil {
			return err
		}
		for _, y := range existing {
			if !start.After(y.EndDate) && !end.Before(y.StartDate) {
				return &YearOverlapError{ExistingID: y.ID, Start: y.StartDate, End: y.EndDate}
			}
		}
		return s.CreateYear(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	return &year, nil
}

// CurrentYear returns the leave year containing today, or the most
// recently created year when today falls in a gap. ErrNotFound when no
// years exist at all.
func (r *YearRegistry) CurrentYear(ctx context.Context) (*LeaveYear, error) {
	years, err := r.store.ListYears(ctx)
	if err != nil {
		return nil, err
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("no leave years registered: %w", ErrNotFound)
	}

	now := r.now()
	for i := range years {
		if years[i].Contains(now) {
			return &years[i], nil
		}
	}

	// Fall back to the most recently created.
	latest := &years[0]
	for i := range years {
		if years[i].CreatedAt.After(latest.CreatedAt) {
			latest = &years[i]
		}
	}
	return latest, nil
}

// ListYears returns all leave years, most recent first. Years are never
// deleted; history is retained indefinitely for audit.
func (r *YearRegistry) ListYears(ctx context.Context) ([]LeaveYear, error) {
	return r.store.ListYears(ctx)
}

// GetYear returns a single year by ID.
func (r *YearRegistry) GetYear(ctx context.Context, id LeaveYearID) (*LeaveYear, error) {
	return r.store.GetYear(ctx, id)
}
