// Package timerange parses "HH:MM-HH:MM" daily windows. A window whose start is
// after its end crosses midnight. Both ends are inclusive at minute resolution.
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Range is a daily window expressed in minutes since midnight.
type Range struct {
	Start int
	End   int
}

// Parse reads a single "HH:MM-HH:MM" range.
func Parse(s string) (Range, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("invalid time range %q: missing '-'", s)
	}

	start, err := parseClock(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("invalid time range %q: %w", s, err)
	}
	end, err := parseClock(endStr)
	if err != nil {
		return Range{}, fmt.Errorf("invalid time range %q: %w", s, err)
	}

	return Range{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	hStr, mStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hStr)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %q out of range", hStr)
	}
	m, err := strconv.Atoi(mStr)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute %q out of range", mStr)
	}
	return h*60 + m, nil
}

// CrossesMidnight reports whether the window wraps past 00:00.
func (r Range) CrossesMidnight() bool {
	return r.Start > r.End
}

// Contains reports whether the wall-clock time of t falls in the window.
func (r Range) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	if r.CrossesMidnight() {
		return minute >= r.Start || minute <= r.End
	}
	return minute >= r.Start && minute <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/60, r.Start%60, r.End/60, r.End%60)
}

// ParseAll parses every entry, skipping invalid ones. The returned error is the
// first invalid entry, if any.
func ParseAll(ranges []string) ([]Range, error) {
	out := make([]Range, 0, len(ranges))
	var firstErr error
	for _, s := range ranges {
		r, err := Parse(s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, r)
	}
	return out, firstErr
}

// AnyContains reports whether t falls in any of the ranges. An empty list means
// "always", matching bots that never configured active hours.
func AnyContains(ranges []string, t time.Time) bool {
	if len(ranges) == 0 {
		return true
	}
	parsed, _ := ParseAll(ranges)
	if len(parsed) == 0 {
		return true
	}
	for _, r := range parsed {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// AnyContainsStrict is AnyContains where an empty or all-invalid list matches
// nothing.
func AnyContainsStrict(ranges []string, t time.Time) bool {
	parsed, _ := ParseAll(ranges)
	for _, r := range parsed {
		if r.Contains(t) {
			return true
		}
	}
	return false
}
