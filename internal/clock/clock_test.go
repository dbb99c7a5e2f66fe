package clock

import (
	"testing"
	"time"
)

func TestDayUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	at := time.Date(2026, 5, 1, 20, 30, 0, 0, time.UTC)
	if got := Day(at, time.UTC); got != "2026-05-01" {
		t.Fatalf("expected 2026-05-01, got %s", got)
	}
	if got := Day(at, jakarta); got != "2026-05-02" {
		t.Fatalf("expected 2026-05-02, got %s", got)
	}
}

func TestNextAt(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", time.Date(2026, 5, 1, 1, 0, 0, 0, loc), 3, time.Date(2026, 5, 1, 3, 0, 0, 0, loc)},
		{"already passed", time.Date(2026, 5, 1, 4, 0, 0, 0, loc), 3, time.Date(2026, 5, 2, 3, 0, 0, 0, loc)},
		{"exact hour rolls over", time.Date(2026, 5, 1, 0, 0, 0, 0, loc), 0, time.Date(2026, 5, 2, 0, 0, 0, 0, loc)},
		{"month end", time.Date(2026, 5, 31, 23, 0, 0, 0, loc), 0, time.Date(2026, 6, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextAt(tc.now, tc.hour, loc); !got.Equal(tc.want) {
				t.Fatalf("NextAt=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestFixedAdvance(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewFixed(start)
	c.Advance(90 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("unexpected time %s", got)
	}
}
