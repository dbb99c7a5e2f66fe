// Package clock supplies wall-clock time and the canonical queue day.
package clock

import (
	"sync"
	"time"
)

const DayLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a settable clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Day formats t as YYYY-MM-DD in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// StartOfDay returns midnight of the day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NextAt returns the first instant strictly after t whose local hour is hour:00.
func NextAt(t time.Time, hour int, loc *time.Location) time.Time {
	start := StartOfDay(t, loc)
	next := time.Date(start.Year(), start.Month(), start.Day(), hour, 0, 0, 0, start.Location())
	if !next.After(t) {
		next = time.Date(start.Year(), start.Month(), start.Day()+1, hour, 0, 0, 0, start.Location())
	}
	return next
}
