package holiday

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "bellboard/internal/log"
)

const maxOccurrencesPerEntry = 1000

// dateKey is the calendar-day key used by the holiday set.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Expand turns entries into the set of calendar days (in loc) they cover
// within [from, to]. A multi-day all-day event covers every day up to but not
// including its DTEND. The value is the event summary; the first entry wins.
func Expand(entries []Entry, from, to time.Time, loc *time.Location) (map[string]string, error) {
	if to.Before(from) {
		return nil, errors.New("holiday: range end is before range start")
	}
	if loc == nil {
		loc = time.Local
	}

	days := make(map[string]string)
	for _, e := range entries {
		for _, start := range occurrences(e, from, to) {
			markDays(days, e, start, loc)
		}
	}
	return days, nil
}

// occurrences returns the start of each instance of e that overlaps [from, to].
func occurrences(e Entry, from, to time.Time) []time.Time {
	length := e.End.Sub(e.Start)

	if e.RRule == "" {
		if e.Start.After(to) || e.Start.Add(length).Before(from) {
			return nil
		}
		return []time.Time{e.Start}
	}

	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("holiday rrule parse failed", err, "uid", e.UID, "rrule", e.RRule)
		return nil
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	// Pull the window back by one instance length so events that started
	// before from but still cover it are included.
	starts := set.Between(from.Add(-length), to, true)
	if len(starts) > maxOccurrencesPerEntry {
		appLog.Error("holiday occurrences truncated", errors.New("max occurrences reached"),
			"uid", e.UID, "cap", maxOccurrencesPerEntry)
		starts = starts[:maxOccurrencesPerEntry]
	}
	return starts
}

func markDays(days map[string]string, e Entry, start time.Time, loc *time.Location) {
	start = start.In(loc)
	end := start.Add(e.End.Sub(e.Start))

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for {
		if _, ok := days[dateKey(day)]; !ok {
			days[dateKey(day)] = e.Summary
		}
		day = day.AddDate(0, 0, 1)
		if !day.Before(end) {
			return
		}
	}
}
