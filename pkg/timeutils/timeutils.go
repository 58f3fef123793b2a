package timeutils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(clock string) (int, int, error) {
	timeParts := strings.Split(strings.TrimSpace(clock), ":")
	if len(timeParts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format, expected HH:MM")
	}
	hour, err := strconv.Atoi(timeParts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour")
	}
	minute, err := strconv.Atoi(timeParts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute")
	}
	return hour, minute, nil
}

// CombineDateAndClock builds the instant of a service day ("2006-01-02") at an
// arrival time ("HH:MM") in loc. An empty clock means midnight.
func CombineDateAndClock(day, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(day), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", day)
	}
	if strings.TrimSpace(clock) == "" {
		return date, nil
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}

// ParseInstant accepts RFC3339, "2006-01-02 15:04" or "2006-01-02". The last
// two are read in loc.
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if day, clock, ok := strings.Cut(value, " "); ok {
		return CombineDateAndClock(day, clock, loc)
	}
	if strings.Contains(value, "T") {
		if day, clock, ok := strings.Cut(value, "T"); ok {
			return CombineDateAndClock(day, clock, loc)
		}
	}
	return CombineDateAndClock(value, "", loc)
}
