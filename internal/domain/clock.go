package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the civil timezone all forecast days and hour slots are expressed in
const DefaultTimezone = "America/El_Salvador"

// DayLayout is the wire format for civil days
const DayLayout = "2006-01-02"

// LoadLocation resolves a timezone name. El Salvador does not observe DST, so a fixed
// UTC-6 zone stands in when the tz database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("CST", -6*3600)
}

// ParseDay parses YYYY-MM-DD as midnight in loc
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return t, nil
}

// ParseHour accepts "HH:MM" or a bare hour and returns the hour of day
func ParseHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Hour(), nil
	}
	if h, err := strconv.Atoi(s); err == nil && h >= 0 && h < 24 {
		return h, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
}

// ParseInstant parses an RFC3339 timestamp
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return t, nil
}

// DayStart truncates t to midnight of its civil day in loc
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey returns the civil day of t in loc as YYYY-MM-DD
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// HourSlot truncates t to the start of its hour in loc
func HourSlot(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
}
