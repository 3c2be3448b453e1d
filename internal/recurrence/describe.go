package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dayAbbrev = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// PatternLabel is the short name shown next to a recurring task.
func PatternLabel(p Pattern) string {
	switch Pattern(strings.ToUpper(string(p))) {
	case PatternDaily:
		return "Daily"
	case PatternWeekly:
		return "Weekly"
	case PatternMonthly:
		return "Monthly"
	case PatternCustom:
		return "Custom"
	default:
		return "Does not repeat"
	}
}

// Ordinal renders n with its English suffix: 1st, 2nd, 3rd, 11th, 21st.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// FormatDescription describes raw (anything Parse accepts) as pattern p.
// The pattern wins over the one carried by raw, so partial objects such as
// {"dayOfMonth": 21} render under the caller's pattern.
func FormatDescription(p Pattern, raw any) string {
	if cfg, ok := raw.(Config); ok {
		return Describe(cfg)
	}
	obj := map[string]any{}
	switch v := raw.(type) {
	case map[string]any:
		for k, val := range v {
			obj[k] = val
		}
	case string:
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return PatternLabel("")
		}
	case []byte:
		if err := json.Unmarshal(v, &obj); err != nil {
			return PatternLabel("")
		}
	}
	if obj == nil {
		obj = map[string]any{}
	}
	obj["pattern"] = string(p)
	cfg, err := Parse(obj)
	if err != nil {
		return PatternLabel("")
	}
	return Describe(cfg)
}

// Describe renders cfg as a sentence fragment, e.g. "Every 2 weeks on Mon, Wed".
func Describe(cfg Config) string {
	if cfg == nil || validate(cfg) != nil {
		return PatternLabel("")
	}
	n := cfg.Every()
	switch c := cfg.(type) {
	case Daily:
		return every(n, "day", "Daily")
	case Custom:
		return every(n, "day", "Daily")
	case Weekly:
		base := every(n, "week", "Weekly")
		if len(c.Days) == 0 {
			return base
		}
		return base + " on " + weekdays(c.Days)
	case Monthly:
		return every(n, "month", "Monthly") + " on the " + Ordinal(c.DayOfMonth)
	}
	return PatternLabel("")
}

func every(n int, unit, single string) string {
	if n == 1 {
		return single
	}
	return fmt.Sprintf("Every %d %ss", n, unit)
}

func weekdays(days []time.Weekday) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, dayAbbrev[d])
	}
	return strings.Join(names, ", ")
}
