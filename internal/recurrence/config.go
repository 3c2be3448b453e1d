package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig marks a recurring configuration that cannot drive generation.
var ErrInvalidConfig = errors.New("invalid recurring config")

// Pattern names the repeat rule of a series.
type Pattern string

const (
	PatternDaily   Pattern = "DAILY"
	PatternWeekly  Pattern = "WEEKLY"
	PatternMonthly Pattern = "MONTHLY"
	PatternCustom  Pattern = "CUSTOM"
)

// Config is one of Daily, Weekly, Monthly or Custom.
type Config interface {
	Pattern() Pattern
	Every() int
	sealed()
}

// Daily repeats every Interval days.
type Daily struct {
	Interval int
}

// Weekly repeats on Days, every Interval weeks.
type Weekly struct {
	Interval int
	Days     []time.Weekday
}

// Monthly repeats on DayOfMonth (clamped to the month length), every Interval months.
type Monthly struct {
	Interval   int
	DayOfMonth int
}

// Custom repeats every Interval days.
type Custom struct {
	Interval int
}

func (Daily) Pattern() Pattern   { return PatternDaily }
func (Weekly) Pattern() Pattern  { return PatternWeekly }
func (Monthly) Pattern() Pattern { return PatternMonthly }
func (Custom) Pattern() Pattern  { return PatternCustom }

func (c Daily) Every() int   { return c.Interval }
func (c Weekly) Every() int  { return c.Interval }
func (c Monthly) Every() int { return c.Interval }
func (c Custom) Every() int  { return c.Interval }

func (Daily) sealed()   {}
func (Weekly) sealed()  {}
func (Monthly) sealed() {}
func (Custom) sealed()  {}

// wireConfig is the JSON form stored in tasks.recurring_config.
type wireConfig struct {
	Pattern    string `json:"pattern"`
	Interval   int    `json:"interval,omitempty"`
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"`
	DayOfMonth int    `json:"dayOfMonth,omitempty"`
}

// Parse accepts a Config, JSON text (string or []byte) or a decoded JSON object
// and returns a validated Config. Any failure wraps ErrInvalidConfig and returns
// a nil Config, so callers can treat the template as paused.
func Parse(raw any) (Config, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: empty", ErrInvalidConfig)
	case Config:
		if err := validate(v); err != nil {
			return nil, err
		}
		return v, nil
	case string:
		return decode([]byte(v))
	case []byte:
		return decode(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return decode(b)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidConfig, raw)
	}
}

// Encode renders cfg in its stored JSON form.
func Encode(cfg Config) (string, error) {
	if err := validate(cfg); err != nil {
		return "", err
	}
	w := wireConfig{Pattern: string(cfg.Pattern()), Interval: cfg.Every()}
	switch c := cfg.(type) {
	case Weekly:
		for _, d := range c.Days {
			w.DaysOfWeek = append(w.DaysOfWeek, int(d))
		}
	case Monthly:
		w.DayOfMonth = c.DayOfMonth
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(b []byte) (Config, error) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidConfig)
	}
	var w wireConfig
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if w.Interval < 0 {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidConfig, w.Interval)
	}
	if w.Interval == 0 {
		w.Interval = 1
	}

	var cfg Config
	switch Pattern(strings.ToUpper(strings.TrimSpace(w.Pattern))) {
	case PatternDaily:
		cfg = Daily{Interval: w.Interval}
	case PatternCustom:
		cfg = Custom{Interval: w.Interval}
	case PatternMonthly:
		cfg = Monthly{Interval: w.Interval, DayOfMonth: w.DayOfMonth}
	case PatternWeekly:
		seen := make(map[int]bool, len(w.DaysOfWeek))
		days := make([]int, 0, len(w.DaysOfWeek))
		for _, d := range w.DaysOfWeek {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("%w: weekday %d", ErrInvalidConfig, d)
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		sort.Ints(days)
		weekly := Weekly{Interval: w.Interval}
		for _, d := range days {
			weekly.Days = append(weekly.Days, time.Weekday(d))
		}
		cfg = weekly
	default:
		return nil, fmt.Errorf("%w: unknown pattern %q", ErrInvalidConfig, w.Pattern)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty", ErrInvalidConfig)
	}
	if cfg.Every() < 1 {
		return fmt.Errorf("%w: interval %d", ErrInvalidConfig, cfg.Every())
	}
	switch c := cfg.(type) {
	case Weekly:
		for _, d := range c.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d", ErrInvalidConfig, d)
			}
		}
	case Monthly:
		if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d", ErrInvalidConfig, c.DayOfMonth)
		}
	}
	return nil
}
