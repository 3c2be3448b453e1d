package recurrence

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestNextOccurrenceDaily(t *testing.T) {
	start := date(2024, time.February, 27)
	for n := 1; n <= 45; n++ {
		for _, cfg := range []Config{Daily{Interval: n}, Custom{Interval: n}} {
			got, ok := NextOccurrence(start, cfg)
			require.True(t, ok)
			assert.Equal(t, start.AddDate(0, 0, n), got, "%T interval %d", cfg, n)
		}
	}
}

func TestNextOccurrenceNilConfig(t *testing.T) {
	got, ok := NextOccurrence(date(2024, time.March, 1), nil)
	assert.False(t, ok)
	assert.True(t, got.IsZero())
}

func TestNextOccurrenceMonthlyClamping(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		cfg  Monthly
		want time.Time
	}{
		{"leap february", date(2024, time.January, 31), Monthly{1, 31}, date(2024, time.February, 29)},
		{"common february", date(2023, time.January, 31), Monthly{1, 31}, date(2023, time.February, 28)},
		{"clamp does not stick", date(2024, time.February, 29), Monthly{1, 31}, date(2024, time.March, 31)},
		{"thirty day month", date(2024, time.March, 31), Monthly{1, 31}, date(2024, time.April, 30)},
		{"day 30 in february", date(2025, time.January, 30), Monthly{1, 30}, date(2025, time.February, 28)},
		{"year rollover", date(2023, time.December, 15), Monthly{1, 15}, date(2024, time.January, 15)},
		{"multi year interval", date(2023, time.November, 1), Monthly{14, 1}, date(2025, time.January, 1)},
		{"quarterly", date(2024, time.November, 30), Monthly{3, 31}, date(2025, time.February, 28)},
		{"century leap rule", date(2100, time.January, 31), Monthly{1, 29}, date(2100, time.February, 28)},
		{"four hundred year leap", date(2000, time.January, 31), Monthly{1, 29}, date(2000, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextOccurrence(tt.from, tt.cfg)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrenceMonthlyDay31Series(t *testing.T) {
	cfg := Monthly{Interval: 1, DayOfMonth: 31}
	cur := date(2024, time.January, 31)
	var got []int
	for i := 0; i < 12; i++ {
		next, ok := NextOccurrence(cur, cfg)
		require.True(t, ok)
		got = append(got, next.Day())
		cur = next
	}
	assert.Equal(t, []int{29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31, 31}, got)
}

func TestNextOccurrenceWeekly(t *testing.T) {
	monWed := []time.Weekday{time.Monday, time.Wednesday}
	tests := []struct {
		name string
		from time.Time
		cfg  Weekly
		want time.Time
	}{
		{"friday wraps to monday", date(2024, time.January, 5), Weekly{1, monWed}, date(2024, time.January, 8)},
		{"monday to wednesday", date(2024, time.January, 8), Weekly{1, monWed}, date(2024, time.January, 10)},
		{"same weekday next week", date(2024, time.January, 10), Weekly{1, []time.Weekday{time.Wednesday}}, date(2024, time.January, 17)},
		{"interval two skips a week", date(2024, time.January, 10), Weekly{2, monWed}, date(2024, time.January, 22)},
		{"interval two within week", date(2024, time.January, 8), Weekly{2, monWed}, date(2024, time.January, 10)},
		{"sunday only", date(2024, time.January, 6), Weekly{1, []time.Weekday{time.Sunday}}, date(2024, time.January, 7)},
		{"no days means whole weeks", date(2024, time.January, 10), Weekly{3, nil}, date(2024, time.January, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextOccurrence(tt.from, tt.cfg)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrenceWeeklyLandsOnConfiguredDay(t *testing.T) {
	sets := [][]time.Weekday{
		{time.Sunday},
		{time.Saturday},
		{time.Monday, time.Thursday},
		{time.Tuesday, time.Wednesday, time.Friday},
		{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
	}
	start := date(2024, time.February, 1)
	for _, days := range sets {
		for interval := 1; interval <= 4; interval++ {
			cfg := Weekly{Interval: interval, Days: days}
			for offset := 0; offset < 14; offset++ {
				from := start.AddDate(0, 0, offset)
				got, ok := NextOccurrence(from, cfg)
				require.True(t, ok)
				assert.True(t, slices.Contains(days, got.Weekday()), "from %s got %s", from, got)
				assert.True(t, got.After(from))
				assert.LessOrEqual(t, got.Sub(from), time.Duration(7*interval+6)*24*time.Hour)
			}
		}
	}
}

func TestNextOccurrenceKeepsClock(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	from := time.Date(2024, time.May, 31, 23, 45, 10, 0, loc)
	got, ok := NextOccurrence(from, Monthly{Interval: 1, DayOfMonth: 31})
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.June, 30, 23, 45, 10, 0, loc), got)
}

func TestNextAfter(t *testing.T) {
	anchor := date(2024, time.January, 1)
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	got, ok := NextAfter(anchor, Daily{Interval: 1}, now)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.March, 11), got)

	got, ok = NextAfter(anchor, Monthly{Interval: 1, DayOfMonth: 31}, now)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.March, 31), got)

	got, ok = NextAfter(anchor, Daily{Interval: 1}, anchor.Add(-time.Hour))
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 2), got)

	_, ok = NextAfter(anchor, nil, now)
	assert.False(t, ok)
}

func TestIsEnded(t *testing.T) {
	now := date(2024, time.June, 1)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	cfg := Daily{Interval: 1}

	assert.True(t, IsEnded(nil, cfg, &past, now))
	assert.True(t, IsEnded(&future, cfg, &past, now), "last generated date does not matter")
	assert.False(t, IsEnded(nil, cfg, &future, now))
	assert.False(t, IsEnded(nil, cfg, nil, now))
	assert.False(t, IsEnded(&past, nil, &past, now))
}

func TestShouldGenerate(t *testing.T) {
	now := date(2024, time.June, 1)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, ShouldGenerate(nil, &past, now))
	assert.True(t, ShouldGenerate(&future, &past, now))
	assert.True(t, ShouldGenerate(nil, &now, now), "due exactly at now")
	assert.False(t, ShouldGenerate(&past, &future, now))
	assert.False(t, ShouldGenerate(&past, nil, now))
}
