package policy

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the organisation-wide scheduling constraints.
type Config struct {
	WorkdayStart      time.Duration
	WorkdayEnd        time.Duration
	WorkingDays       map[time.Weekday]bool
	MinDuration       time.Duration
	MaxDuration       time.Duration
	Location          *time.Location
	MinRejectComments int
}

func DefaultConfig() Config {
	return Config{
		WorkdayStart: 8 * time.Hour,
		WorkdayEnd:   15 * time.Hour,
		WorkingDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		MinDuration:       15 * time.Minute,
		MaxDuration:       8 * time.Hour,
		Location:          time.UTC,
		MinRejectComments: 10,
	}
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseClock turns "HH:MM" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ParseWorkingDays accepts weekday names such as "mon" or "Monday".
func ParseWorkingDays(values []string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool, len(values))
	for _, value := range values {
		name := strings.ToLower(strings.TrimSpace(value))
		if len(name) < 3 {
			return nil, fmt.Errorf("invalid weekday %q", value)
		}
		day, ok := weekdays[name[:3]]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", value)
		}
		out[day] = true
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one working day is required")
	}
	return out, nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Local converts t into the organisation's timezone.
func (c Config) Local(t time.Time) time.Time {
	return t.In(c.location())
}

// WorkingDaysIn counts working days of the given month.
func (c Config) WorkingDaysIn(year int, month time.Month) int {
	day := time.Date(year, month, 1, 0, 0, 0, 0, c.location())
	count := 0
	for day.Month() == month {
		if c.WorkingDays[day.Weekday()] {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
