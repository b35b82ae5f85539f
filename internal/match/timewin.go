package match

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayMask is a 7-bit weekday mask, bit 0 = Monday through bit 6 = Sunday.
type DayMask uint8

const (
	Monday DayMask = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekend  = Saturday | Sunday
	EveryDay = Weekdays | Weekend
)

// MaskForWeekday converts a time.Weekday (Sunday-based) to a DayMask bit.
func MaskForWeekday(d time.Weekday) DayMask {
	if d == time.Sunday {
		return Sunday
	}
	return DayMask(1 << (int(d) - 1))
}

// Has reports whether every bit of day is set in the mask.
func (m DayMask) Has(day DayMask) bool {
	return m&day == day
}

// Window is one service-hour window: the weekdays it applies to and the
// opening span in minutes since midnight. A window whose End is earlier than
// its Start spans midnight (e.g. 22:00-06:00).
type Window struct {
	Days  DayMask `json:"days"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Covers reports whether the minute-of-day t falls inside the window,
// honoring midnight wrap-around.
func (w Window) Covers(t int) bool {
	if w.End < w.Start {
		return t >= w.Start || t <= w.End
	}
	return t >= w.Start && t <= w.End
}

// ParseClockTime normalizes a clock-time string into minutes since midnight.
// Accepted forms: 24-hour "HH:MM", 12-hour "H:MM AM"/"H:MMPM", and compact
// four-digit "HHMM". Anything else is an error, never a silent default.
func ParseClockTime(s string) (int, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty time string")
	}

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(s, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	var hourStr, minStr string
	switch {
	case strings.Contains(s, ":"):
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return 0, fmt.Errorf("malformed time %q", orig)
		}
		hourStr, minStr = parts[0], parts[1]
	case len(s) == 4 && meridiem == "":
		hourStr, minStr = s[:2], s[2:]
	default:
		return 0, fmt.Errorf("malformed time %q", orig)
	}

	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", orig)
	}
	minute, err := strconv.Atoi(minStr)
	if err != nil || len(minStr) != 2 {
		return 0, fmt.Errorf("malformed minute in %q", orig)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute out of range in %q", orig)
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("hour out of range for 12-hour time %q", orig)
		}
		if hour == 12 {
			hour = 0
		}
		if meridiem == "PM" {
			hour += 12
		}
	} else if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour out of range in %q", orig)
	}

	return hour*60 + minute, nil
}
