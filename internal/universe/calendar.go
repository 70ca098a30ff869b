// Package universe implements date-driven selection of top-volume
// instruments over rolling lookback windows, producing an auditable
// snapshot sequence.
package universe

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for dates in the universe document.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC-midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddMonths advances t by the given number of calendar months, clamping the
// day of month to the target month's end so that Jan 31 + 1 month is Feb 28
// (or 29), never an overflow into March.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// SubMonths moves t back by the given number of calendar months with the
// same month-end clamping as AddMonths (Jan 31 - 1 month is Dec 31).
func SubMonths(t time.Time, months int) time.Time {
	return AddMonths(t, -months)
}

// RebalanceDates generates the universe recomputation schedule: starting at
// start and stepping by t2Months calendar months while within end. The final
// element is always exactly end, appended when the stepping would otherwise
// stop short, so the full range is covered.
func RebalanceDates(start, end time.Time, t2Months int) []time.Time {
	if t2Months < 1 || end.Before(start) {
		return nil
	}

	var dates []time.Time
	for cur := start; !cur.After(end); cur = AddMonths(cur, t2Months) {
		dates = append(dates, cur)
	}
	if len(dates) == 0 || !dates[len(dates)-1].Equal(end) {
		dates = append(dates, end)
	}
	return dates
}

// LookbackWindow returns the ranking window ending at effective and starting
// t1Months calendar months earlier. The start is clamped at globalStart (the
// overall range start) when it would precede it; adjusted reports the clamp.
func LookbackWindow(effective time.Time, t1Months int, globalStart time.Time) (start, end time.Time, adjusted bool) {
	end = effective
	start = SubMonths(effective, t1Months)
	if !globalStart.IsZero() && start.Before(globalStart) {
		return globalStart, end, true
	}
	return start, end, false
}

// MinExistenceCutoff returns the latest listing date an instrument may have
// and still be eligible at the given effective date: instruments listed
// after effective - t3Months are excluded.
func MinExistenceCutoff(effective time.Time, t3Months int) time.Time {
	return SubMonths(effective, t3Months)
}

// DayStartTS returns the millisecond timestamp of the start of t's UTC day.
func DayStartTS(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}

// DayEndTS returns the millisecond timestamp of the last instant of t's UTC
// day (next midnight minus one millisecond), so daily bars opened on t are
// included in [DayStartTS, DayEndTS].
func DayEndTS(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).Add(-time.Millisecond).UnixMilli()
}
