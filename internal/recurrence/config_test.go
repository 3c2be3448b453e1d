package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Config
	}{
		{name: "daily", raw: `{"pattern":"DAILY","interval":2}`, want: Daily{Interval: 2}},
		{name: "interval defaults to one", raw: `{"pattern":"DAILY"}`, want: Daily{Interval: 1}},
		{name: "pattern is case insensitive", raw: `{"pattern":"custom","interval":10}`, want: Custom{Interval: 10}},
		{
			name: "weekly days are sorted and deduplicated",
			raw:  `{"pattern":"WEEKLY","interval":1,"daysOfWeek":[3,1,3]}`,
			want: Weekly{Interval: 1, Days: []time.Weekday{time.Monday, time.Wednesday}},
		},
		{name: "weekly without days", raw: `{"pattern":"WEEKLY","interval":2}`, want: Weekly{Interval: 2}},
		{name: "monthly", raw: `{"pattern":"MONTHLY","interval":1,"dayOfMonth":31}`, want: Monthly{Interval: 1, DayOfMonth: 31}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	inputs := map[string]any{
		"nil":                  nil,
		"empty string":         "",
		"malformed json":       `{"pattern":`,
		"unknown pattern":      `{"pattern":"YEARLY"}`,
		"negative interval":    `{"pattern":"DAILY","interval":-1}`,
		"weekday out of range": `{"pattern":"WEEKLY","daysOfWeek":[7]}`,
		"monthly without day":  `{"pattern":"MONTHLY","interval":1}`,
		"monthly day 32":       `{"pattern":"MONTHLY","dayOfMonth":32}`,
		"structured invalid":   Monthly{Interval: 1, DayOfMonth: 0},
		"zero interval value":  Daily{},
		"unsupported type":     42,
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(raw)
			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestParseStructuredIsIdempotent(t *testing.T) {
	configs := []Config{
		Daily{Interval: 1},
		Custom{Interval: 9},
		Weekly{Interval: 3, Days: []time.Weekday{time.Tuesday, time.Saturday}},
		Monthly{Interval: 2, DayOfMonth: 15},
	}
	for _, cfg := range configs {
		got, err := Parse(cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	}
}

func TestParseDecodedObject(t *testing.T) {
	got, err := Parse(map[string]any{"pattern": "MONTHLY", "interval": 3, "dayOfMonth": 5})
	require.NoError(t, err)
	assert.Equal(t, Monthly{Interval: 3, DayOfMonth: 5}, got)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Weekly{Interval: 2, Days: []time.Weekday{time.Monday, time.Friday}}
	text, err := Encode(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pattern":"WEEKLY","interval":2,"daysOfWeek":[1,5]}`, text)

	back, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)

	_, err = Encode(Monthly{Interval: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
