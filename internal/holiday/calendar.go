// Package holiday tracks pupil-free days from ICS term calendars and gates
// the bell board on them.
package holiday

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	appLog "bellboard/internal/log"
	"bellboard/internal/timetable"
)

// Calendar is the current set of non-school days. The zero value is an empty
// calendar in time.Local.
type Calendar struct {
	loc *time.Location

	mu      sync.RWMutex
	days    map[string]string
	updated time.Time
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc, days: map[string]string{}}
}

func (c *Calendar) location() *time.Location {
	if c == nil || c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Set replaces the holiday set.
func (c *Calendar) Set(days map[string]string) {
	cp := make(map[string]string, len(days))
	for k, v := range days {
		cp[k] = v
	}
	c.mu.Lock()
	c.days = cp
	c.updated = time.Now()
	c.mu.Unlock()
}

// Lookup returns the holiday name for the school day containing t.
func (c *Calendar) Lookup(t time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.days[dateKey(t.In(c.location()))]
	return name, ok
}

func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.Lookup(t)
	return ok
}

// Len is the number of holiday days known.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}

// Updated is when the set was last replaced.
func (c *Calendar) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Refresh fetches feeds and rebuilds the set for a window around now. On
// total failure the previous set is kept.
func (c *Calendar) Refresh(ctx context.Context, f *Fetcher, feeds []Feed, now time.Time) error {
	if len(feeds) == 0 {
		return nil
	}
	results, errs := f.FetchAll(ctx, feeds)
	if len(results) == 0 {
		return errors.Join(errs...)
	}

	var entries []Entry
	for _, res := range results {
		es, err := Parse(res.Feed.ID, res.Body, c.location())
		if err != nil {
			appLog.Error("holiday parse failed", err, "id", res.Feed.ID)
			errs = append(errs, err)
			continue
		}
		entries = append(entries, es...)
	}

	days, err := Expand(entries, now.AddDate(0, -1, 0), now.AddDate(1, 1, 0), c.location())
	if err != nil {
		return err
	}
	c.Set(days)
	appLog.Info("holidays refreshed", "feeds", len(results), "days", len(days))
	return errors.Join(errs...)
}

// NextSchoolDay returns midnight of the first weekday strictly after the day
// containing after that is not a holiday. It looks at most a year ahead and
// returns the zero time if every weekday in that span is a holiday.
func (c *Calendar) NextSchoolDay(after time.Time) time.Time {
	loc := c.location()
	a := after.In(loc)
	next := time.Date(a.Year(), a.Month(), a.Day()+1, 0, 0, 0, 0, loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   next,
		Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR},
		Until:     next.AddDate(1, 0, 0),
	})
	if err != nil {
		appLog.Error("next school day rrule failed", err)
		return time.Time{}
	}

	it := r.Iterator()
	for {
		d, ok := it()
		if !ok {
			return time.Time{}
		}
		if !c.IsHoliday(d) {
			return d
		}
	}
}

// Gate combines school hours with the holiday calendar.
type Gate struct {
	Hours    timetable.Hours
	Calendar *Calendar
}

// Open reports whether the board should show bells at now.
func (g Gate) Open(now time.Time) bool {
	return g.Hours.Contains(now) && !g.Calendar.IsHoliday(now)
}
