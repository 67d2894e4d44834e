// Package cycle provides the calendar arithmetic behind billing periods.
// All functions are pure and operate on date precision (time-of-day is
// discarded).
package cycle

import "time"

// Cycle is the billing cycle length of a plan.
type Cycle string

const (
	OneTime    Cycle = "one_time"
	Monthly    Cycle = "monthly"
	Quarterly  Cycle = "quarterly"
	SemiAnnual Cycle = "semi_annual"
	Annual     Cycle = "annual"
)

// Months returns the number of calendar months in one cycle, 0 for one-time.
func (c Cycle) Months() int {
	switch c {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case SemiAnnual:
		return 6
	case Annual:
		return 12
	default:
		return 0
	}
}

// Valid reports whether c is a known cycle type.
func (c Cycle) Valid() bool {
	switch c {
	case OneTime, Monthly, Quarterly, SemiAnnual, Annual:
		return true
	}
	return false
}

// AddCycle adds count cycles worth of calendar months to date. The day of
// month is clamped to the last day of the target month when the source day
// overflows it (Jan 31 + 1 month = Feb 28/29), so repeated additions never
// drift into the following month. One-time cycles return date unchanged.
func AddCycle(date time.Time, c Cycle, count int) time.Time {
	months := c.Months() * count
	if months == 0 {
		return truncate(date)
	}
	return addMonths(truncate(date), months)
}

// EndDate computes the end of the billing period starting at start.
func EndDate(start time.Time, c Cycle) time.Time {
	return AddCycle(start, c, 1)
}

// NextBillingDate computes the billing date following a period ending at end.
func NextBillingDate(end time.Time, c Cycle) time.Time {
	return AddCycle(end, c, 1)
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	// Anchor on the first of the month so AddDate cannot overflow into the
	// month after the target one.
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)

	if last := lastDayOfMonth(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
