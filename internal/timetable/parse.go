package timetable

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformedRange is returned when a time range does not have the
// "H:MM - H:MM" shape or an endpoint is out of range.
var ErrMalformedRange = errors.New("timetable: malformed time range")

// rangeRe matches exactly "H:MM - H:MM" (one or two hour digits, two minute digits).
var rangeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}) - (\d{1,2}):(\d{2})$`)

// clockRe matches a single "H:MM" endpoint.
var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseRange converts "H:MM - H:MM" into two instants on ref's calendar day,
// in ref's location, with seconds zeroed. An end before start is returned as
// is; ranges crossing midnight are not supported.
func ParseRange(text string, ref time.Time) (start, end time.Time, err error) {
	m := rangeRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrMalformedRange, text)
	}

	sh, sm, err := clockParts(m[1], m[2])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedRange, text, err)
	}
	eh, em, err := clockParts(m[3], m[4])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedRange, text, err)
	}

	return at(ref, sh, sm), at(ref, eh, em), nil
}

// ParseClock parses a single "H:MM" time of day.
func ParseClock(text string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedRange, text)
	}
	hour, minute, err = clockParts(m[1], m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrMalformedRange, text, err)
	}
	return hour, minute, nil
}

// RangeStart returns the start endpoint text of a range ("13:05 - 14:00" -> "13:05").
func RangeStart(text string) (string, error) {
	m := rangeRe.FindStringSubmatch(text)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedRange, text)
	}
	return m[1] + ":" + m[2], nil
}

func clockParts(hs, ms string) (int, int, error) {
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, err
	}
	mi, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range", h)
	}
	if mi < 0 || mi > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range", mi)
	}
	return h, mi, nil
}

// at anchors hour:minute to ref's calendar day.
func at(ref time.Time, hour, minute int) time.Time {
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, ref.Location())
}
