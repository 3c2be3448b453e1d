package recurrence

import (
	"slices"
	"time"
)

// maxSteps bounds NextAfter when catching up a long-idle series.
const maxSteps = 100000

// NextOccurrence returns the occurrence that follows last under cfg.
// It reports false when cfg is nil. Time of day and location of last are kept.
func NextOccurrence(last time.Time, cfg Config) (time.Time, bool) {
	if cfg == nil || cfg.Every() < 1 {
		return time.Time{}, false
	}
	switch c := cfg.(type) {
	case Daily:
		return last.AddDate(0, 0, c.Interval), true
	case Custom:
		return last.AddDate(0, 0, c.Interval), true
	case Weekly:
		return nextWeekly(last, c), true
	case Monthly:
		return nextMonthly(last, c), true
	default:
		return time.Time{}, false
	}
}

// NextAfter walks the series anchored at anchor and returns the first
// occurrence strictly after now.
func NextAfter(anchor time.Time, cfg Config, now time.Time) (time.Time, bool) {
	next := anchor
	for i := 0; i < maxSteps; i++ {
		n, ok := NextOccurrence(next, cfg)
		if !ok || !n.After(next) {
			return time.Time{}, false
		}
		next = n
		if next.After(now) {
			return next, true
		}
	}
	return time.Time{}, false
}

// IsEnded reports whether a valid series has an end date before now.
// lastGenerated does not take part in the decision.
func IsEnded(lastGenerated *time.Time, cfg Config, end *time.Time, now time.Time) bool {
	_ = lastGenerated
	if cfg == nil || end == nil {
		return false
	}
	return end.Before(now)
}

// ShouldGenerate reports whether next is set and not after now.
// lastGenerated does not take part in the decision.
func ShouldGenerate(lastGenerated, next *time.Time, now time.Time) bool {
	_ = lastGenerated
	if next == nil {
		return false
	}
	return !next.After(now)
}

func nextWeekly(last time.Time, c Weekly) time.Time {
	if len(c.Days) == 0 {
		return last.AddDate(0, 0, 7*c.Interval)
	}
	cur := last.Weekday()
	for d := cur + 1; d <= time.Saturday; d++ {
		if slices.Contains(c.Days, d) {
			return last.AddDate(0, 0, int(d-cur))
		}
	}
	// No later day this week: first listed day of the week Interval weeks ahead.
	first := slices.Min(c.Days)
	weekStart := last.AddDate(0, 0, -int(cur))
	return weekStart.AddDate(0, 0, 7*c.Interval+int(first))
}

func nextMonthly(last time.Time, c Monthly) time.Time {
	year, month, _ := last.Date()
	total := int(month) - 1 + c.Interval
	year += total / 12
	month = time.Month(total%12 + 1)

	day := c.DayOfMonth
	if end := daysInMonth(month, year); day > end {
		day = end
	}
	hour, minute, sec := last.Clock()
	return time.Date(year, month, day, hour, minute, sec, last.Nanosecond(), last.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstOfNextMonth := firstOfMonth.AddDate(0, 1, 0)
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfMonth.Day()
}
