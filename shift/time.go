package shift

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CLOCK - Injectable "now" source
// =============================================================================

// Clock supplies the current time. Tests freeze it with FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant until Set is called.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================================================================
// DAY ARITHMETIC
// =============================================================================

// DateOf returns midnight of t's calendar day in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns midnight of the day after t in t's location.
func NextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day, using a's
// location for both.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AtTimeOf returns day's date combined with the wall clock of tod.
func AtTimeOf(day, tod time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), day.Location())
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t's day lies within the period.
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t.In(p.Start.Location()))
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for current := p.Start; !current.After(p.End); current = NextDay(current) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// MonthPeriod returns the period covering a calendar month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	return Period{Start: start, End: end}
}

// =============================================================================
// WORK HOURS - HH:MM <-> minutes
// =============================================================================

// FormatWorkHours renders minutes as HH:MM.
func FormatWorkHours(minutes int) string {
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes/60, minutes%60)
}

// ParseWorkHours parses HH:MM (or HH.MM, or a bare hour count) into minutes.
func ParseWorkHours(s string) (int, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":.")
	if sep < 0 {
		h, err := strconv.Atoi(s)
		if err != nil || h < 0 {
			return 0, fmt.Errorf("%w: work hours %q", ErrInvalidContract, s)
		}
		return h * 60, nil
	}
	h, errH := strconv.Atoi(s[:sep])
	m, errM := strconv.Atoi(s[sep+1:])
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: work hours %q", ErrInvalidContract, s)
	}
	return h*60 + m, nil
}
