// Package ics exports the bell schedule as an iCalendar feed so the week's
// periods can be subscribed to from a calendar app.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"bellboard/internal/model"
	"bellboard/internal/timetable"
)

const productID = "-//bellboard//Bell Times//EN"

// uidSpace namespaces the name-based event UIDs.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:bellboard:bells"))

// ExportWeek renders Monday to Friday of the week containing weekStart.
func ExportWeek(s model.Schedule, weekStart time.Time, loc *time.Location) ([]byte, error) {
	return ExportWeekSkipping(s, weekStart, loc, nil)
}

// ExportWeekSkipping is ExportWeek leaving out days for which skip returns
// true (holidays). Output is deterministic for a given table and week.
func ExportWeekSkipping(s model.Schedule, weekStart time.Time, loc *time.Location, skip func(time.Time) bool) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	monday := mondayOf(weekStart.In(loc))

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Bell Times")

	stamp := monday.UTC()
	for i := 0; i < 5; i++ {
		day := monday.AddDate(0, 0, i)
		if skip != nil && skip(day) {
			continue
		}
		variant := timetable.SelectFor(day)
		for _, p := range timetable.Periods(s, variant) {
			start, end, err := timetable.ParseRange(p.TimeRange, day)
			if err != nil {
				return nil, fmt.Errorf("ics: %s period %q: %w", variant, p.Label, err)
			}

			ev := cal.AddEvent(eventUID(day, variant, p))
			ev.SetDtStampTime(stamp)
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			ev.SetSummary(summary(p))
			if p.Room != "" {
				ev.SetLocation(p.Room)
			}
			if p.Teacher != "" {
				ev.SetDescription(p.Teacher)
			}
		}
	}
	return []byte(cal.Serialize()), nil
}

func summary(p model.Period) string {
	if p.Subject != "" {
		return p.Label + ": " + p.Subject
	}
	return p.Label
}

func eventUID(day time.Time, v model.Variant, p model.Period) string {
	name := fmt.Sprintf("%s|%s|%s|%s", day.Format("2006-01-02"), v, p.Label, p.TimeRange)
	return uuid.NewSHA1(uidSpace, []byte(name)).String() + "@bellboard"
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}
