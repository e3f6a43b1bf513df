package timetable

import (
	"fmt"
	"time"
)

// Week is the fortnightly timetable rotation.
type Week string

const (
	WeekA Week = "A"
	WeekB Week = "B"
)

// ParseWeek accepts "A" or "B".
func ParseWeek(s string) (Week, error) {
	switch Week(s) {
	case WeekA, WeekB:
		return Week(s), nil
	}
	return "", fmt.Errorf("timetable: week must be A or B, got %q", s)
}

// Toggle returns the other week.
func (w Week) Toggle() Week {
	if w == WeekA {
		return WeekB
	}
	return WeekA
}

// WeekOf returns the rotation week of t, counting whole weeks from the
// Monday of anchor, which is week A. Dates before anchor alternate the same
// way backwards.
func WeekOf(t, anchor time.Time) Week {
	a := mondayOf(anchor)
	b := mondayOf(t.In(anchor.Location()))

	// Days between two midnights; round to absorb DST shifts.
	days := int(b.Sub(a).Round(24*time.Hour) / (24 * time.Hour))
	weeks := days / 7
	if weeks%2 == 0 {
		return WeekA
	}
	return WeekB
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}
