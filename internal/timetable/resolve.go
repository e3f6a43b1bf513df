package timetable

import (
	"fmt"
	"time"

	"bellboard/internal/model"
)

// Texts for the exhausted state. The resolver itself only reports
// StateExhausted; callers pick the wording.
const (
	NoMoreClasses = "No more classes today"
	NoMoreBells   = "No more bells today"
)

type span struct {
	start time.Time
	end   time.Time
}

func (s span) contains(t time.Time) bool {
	return !t.Before(s.start) && !t.After(s.end)
}

// Resolve finds the current and next period for now.
//
// Containment is inclusive at both ends. When now is the end of one period
// and the start of a later one, the later one is current, so the board flips
// on the bell. This deliberately differs from earlier clients, which kept the
// ending period current through the boundary minute. Any other overlap
// goes to the earliest listed period. periods must already be in
// chronological order; they are not sorted here.
//
// An empty list resolves to StateExhausted. A malformed range anywhere in
// the list is returned as an error wrapping ErrMalformedRange.
func Resolve(periods []model.Period, now time.Time) (model.Resolution, error) {
	spans := make([]span, len(periods))
	for i, p := range periods {
		start, end, err := ParseRange(p.TimeRange, now)
		if err != nil {
			return model.Resolution{}, fmt.Errorf("period %q: %w", p.Label, err)
		}
		spans[i] = span{start: start, end: end}
	}

	current := -1
	for i, s := range spans {
		if !s.contains(now) {
			continue
		}
		if current < 0 {
			current = i
		} else if now.Equal(s.start) {
			current = i
			break
		}
		if !now.Equal(spans[current].end) {
			break
		}
	}

	if current >= 0 {
		res := model.Resolution{
			Current:  &periods[current],
			InPeriod: true,
			Until:    spans[current].end.Sub(now),
			State:    model.StateInPeriod,
		}
		if current+1 < len(periods) {
			res.Next = &periods[current+1]
		}
		return res, nil
	}

	for i, s := range spans {
		if s.start.After(now) {
			return model.Resolution{
				Next:  &periods[i],
				Until: s.start.Sub(now),
				State: model.StateBeforePeriod,
			}, nil
		}
	}

	return model.Resolution{State: model.StateExhausted}, nil
}

// Describe renders the coarse "time until" text for a resolution, in whole
// minutes rounded down. exhausted is returned for StateExhausted.
func Describe(r model.Resolution, exhausted string) string {
	minutes := int(r.Until / time.Minute)
	if minutes < 0 {
		minutes = 0
	}

	switch r.State {
	case model.StateInPeriod:
		return fmt.Sprintf("%d min until end", minutes)
	case model.StateBeforePeriod:
		if minutes < 60 {
			return fmt.Sprintf("%d min until start", minutes)
		}
		return fmt.Sprintf("%dh %dm until start", minutes/60, minutes%60)
	default:
		return exhausted
	}
}
