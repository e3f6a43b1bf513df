package holiday

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "bellboard/internal/log"
)

// Entry is one VEVENT from a holiday feed, before recurrence expansion.
type Entry struct {
	FeedID  string
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
}

// Parse decodes an ICS body into entries. Events without a UID or a usable
// DTSTART are skipped and logged; the rest of the feed is still used.
func Parse(feedID string, body []byte, loc *time.Location) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("holiday: empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		e, err := parseEvent(feedID, ve, loc)
		if err != nil {
			appLog.Error("holiday vevent skipped", err, "feed", feedID)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseEvent(feedID string, ve *ical.VEvent, loc *time.Location) (Entry, error) {
	e := Entry{FeedID: feedID}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return e, errors.New("missing DTSTART")
	}
	e.AllDay = isDateValue(dtStart)

	if e.AllDay {
		start, err := parseDate(dtStart.Value, loc)
		if err != nil {
			return e, err
		}
		e.Start = start
		e.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDate(dtEnd.Value, loc); err == nil && end.After(start) {
				e.End = end
			}
		}
	} else {
		start, err := eventTime(ve, dtStart, loc, true)
		if err != nil {
			return e, err
		}
		e.Start = start
		e.End = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := eventTime(ve, dtEnd, loc, false); err == nil && end.After(start) {
				e.End = end
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}
	return e, nil
}

// eventTime reads DTSTART/DTEND. Zoned values go through the library;
// floating and UTC values are read directly so floating times land in loc.
func eventTime(ve *ical.VEvent, p *ical.IANAProperty, loc *time.Location, start bool) (time.Time, error) {
	if _, zoned := p.ICalParameters["TZID"]; zoned {
		var t time.Time
		var err error
		if start {
			t, err = ve.GetStartAt()
		} else {
			t, err = ve.GetEndAt()
		}
		return t.In(loc), err
	}
	return parseICSTime(strings.TrimSpace(p.Value), loc)
}

// isDateValue reports whether DTSTART is a DATE (all-day) value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("20060102", strings.TrimSpace(v), loc)
}

// parseICSTime handles the DATE, local DATE-TIME and UTC DATE-TIME forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), err
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return parseDate(v, loc)
	}
}
