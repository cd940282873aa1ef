package shift

import (
	"fmt"
	"strings"
	"time"
)

// Frequency of a recurring shift.
type Frequency string

const (
	Once    Frequency = "ONCE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// ParseFrequency accepts the frequency names case-insensitively. An empty
// string means Once.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return Once, nil
	case Once, Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, s)
	}
}

// Expand returns the occurrence dates of a recurrence, starting with start's
// day and ending at or before until's day. Monthly recurrences keep the day
// of month and skip months that do not have it. Once yields only start.
// Dates are midnights in start's location.
func Expand(start, until time.Time, freq Frequency) []time.Time {
	dates, _ := ExpandLimit(start, until, freq, 0)
	return dates
}

// ExpandLimit is Expand stopping after limit dates. It reports whether the
// recurrence has more dates than limit. A limit of zero or less means none.
func ExpandLimit(start, until time.Time, freq Frequency, limit int) ([]time.Time, bool) {
	first := DateOf(start)
	if freq == Once || freq == "" {
		return []time.Time{first}, false
	}
	last := DateOf(until.In(start.Location()))

	var dates []time.Time
	y, m, d := first.Date()
	loc := first.Location()
	for i := 0; ; i++ {
		var next time.Time
		switch freq {
		case Daily:
			next = time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		case Weekly:
			next = time.Date(y, m, d+7*i, 0, 0, 0, 0, loc)
		case Monthly:
			next = time.Date(y, m+time.Month(i), d, 0, 0, 0, 0, loc)
			if next.After(last) {
				return dates, false
			}
			if next.Day() != d {
				continue
			}
		default:
			return []time.Time{first}, false
		}
		if next.After(last) {
			return dates, false
		}
		if limit > 0 && len(dates) == limit {
			return dates, true
		}
		dates = append(dates, next)
	}
}

// Occurrences expands the recurrence and places the time-of-day template
// of iv on every date. The first interval is iv itself.
func Occurrences(iv Interval, until time.Time, freq Frequency) []Interval {
	dates := Expand(iv.Start, until, freq)
	out := make([]Interval, 0, len(dates))
	for _, day := range dates {
		out = append(out, Interval{
			Start:  AtTimeOf(day, iv.Start),
			Finish: AtTimeOf(day, iv.Finish.In(iv.Start.Location())),
		})
	}
	return out
}
