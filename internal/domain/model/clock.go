package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ReferenceDate is the calendar date every reading is normalized onto.
var ReferenceDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrBadClock is returned when a time-of-day string cannot be parsed.
var ErrBadClock = errors.New("unparsable time of day")

// clockLayouts are tried in order by ParseClock.
var clockLayouts = []string{
	"15:04:05",
	"15:04:05.000",
	"15:04",
	"3:04:05 PM",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"01-02-06 15:04:05",
	"1/2/06 15:04",
}

// OnReferenceDate drops the calendar date from t and keeps its clock
// component, sub-second part included, on ReferenceDate.
func OnReferenceDate(t time.Time) time.Time {
	h, m, s := t.Clock()
	return ReferenceDate.Add(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseClock parses a time-of-day string and returns it on ReferenceDate.
func ParseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadClock
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return OnReferenceDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadClock, s)
}

// FromDayFraction converts a spreadsheet serial (days) to a time of day on
// ReferenceDate; the integral day part is discarded.
func FromDayFraction(serial float64) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 0 {
		return time.Time{}, fmt.Errorf("%w: serial %v", ErrBadClock, serial)
	}
	_, frac := math.Modf(serial)
	ms := math.Round(frac * 86400e3)
	if ms >= 86400e3 {
		ms = 0
	}
	return ReferenceDate.Add(time.Duration(ms) * time.Millisecond), nil
}

// ParseElapsed parses an elapsed duration such as "0:01:05", "00:01:05.500"
// or "1 days 00:00:03".
func ParseElapsed(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var days int
	if i := strings.Index(s, "day"); i > 0 {
		if _, err := fmt.Sscanf(strings.TrimSpace(s[:i]), "%d", &days); err != nil {
			return 0, fmt.Errorf("elapsed %q: %w", s, err)
		}
		s = strings.TrimSpace(strings.TrimLeft(s[i:], "days"))
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("elapsed %q: want h:mm:ss", s)
	}
	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("elapsed %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("elapsed %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[2], "%g", &sec); err != nil {
		return 0, fmt.Errorf("elapsed %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("elapsed %q: out of range", s)
	}
	d := time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(math.Round(sec*1e3))*time.Millisecond
	return d, nil
}

// FormatRelative renders a second offset as "m:ss", with a leading minus for
// negative offsets: -300 -> "-5:00", -1 -> "-0:01", 75 -> "1:15".
func FormatRelative(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%d:%02d", sign, seconds/60, seconds%60)
}

// CompactClock strips separators from a clock string: "14:08:12" -> "140812".
func CompactClock(s string) string {
	return strings.ReplaceAll(s, ":", "")
}
