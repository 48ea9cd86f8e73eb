package leave

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE HELPERS
// =============================================================================

// DateOf truncates t to midnight UTC. All leave dates are day-granular.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a day-granular UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func labelFor(startYear, endYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, endYear%100)
}

// =============================================================================
// FISCAL YEAR BOUNDS - 1 April to 31 March
// =============================================================================

// FiscalYearBounds returns the conventional leave year containing t:
// 1 April through 31 March.
func FiscalYearBounds(t time.Time) (start, end time.Time) {
	startYear := t.Year()
	if t.Month() < time.April {
		startYear--
	}
	return Date(startYear, time.April, 1), Date(startYear+1, time.March, 31)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a company holiday excluded from working-day counts.
type Holiday struct {
	ID        string
	Date      time.Time
	Name      string
	Recurring bool // same month/day every year
}

// HolidayCalendar answers whether a date is a company holiday.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is the calendar used when holidays are not configured.
// The original system excluded only weekends.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// IsWorkday reports whether t is a working day: not a weekend and not a
// holiday on the given calendar.
func IsWorkday(t time.Time, cal HolidayCalendar) bool {
	if IsWeekend(t) {
		return false
	}
	if cal != nil && cal.IsHoliday(t) {
		return false
	}
	return true
}

// =============================================================================
// DURATION - Working days in a range, with half-day support
// =============================================================================

// WorkingDays counts working days in [start, end] inclusive.
func WorkingDays(start, end time.Time, cal HolidayCalendar) int {
	count := 0
	for d := DateOf(start); !d.After(DateOf(end)); d = d.AddDate(0, 0, 1) {
		if IsWorkday(d, cal) {
			count++
		}
	}
	return count
}

// Duration computes the duration of a leave range in days. A single-day
// entry marked AM or PM counts as half a day; everything else is the
// working-day count of the range.
func Duration(start, end time.Time, part DayPart, cal HolidayCalendar) Days {
	full := WorkingDays(start, end, cal)
	if full == 0 {
		return ZeroDays()
	}
	if full == 1 && (part == MorningHalf || part == AfternoonHalf) {
		return NewDays(0.5)
	}
	return DaysFromInt(full)
}
