package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"bellboard/internal/ics"
	appLog "bellboard/internal/log"
	"bellboard/internal/model"
	"bellboard/internal/timetable"
)

type periodDTO struct {
	Label   string `json:"label"`
	Time    string `json:"time"`
	Start   string `json:"start"`
	Subject string `json:"subject,omitempty"`
	Teacher string `json:"teacher,omitempty"`
	Room    string `json:"room,omitempty"`
}

type variantDTO struct {
	Variant model.Variant `json:"variant"`
	Name    string        `json:"name"`
	Today   bool          `json:"today"`
	Periods []periodDTO   `json:"periods"`
}

func (s *Server) variantDTO(v model.Variant, today model.Variant) variantDTO {
	periods := timetable.Periods(s.schedules, v)
	out := variantDTO{Variant: v, Name: v.DisplayName(), Today: v == today, Periods: make([]periodDTO, 0, len(periods))}
	for _, p := range periods {
		out.Periods = append(out.Periods, periodDTO{
			Label:   p.Label,
			Time:    p.TimeRange,
			Start:   timetable.FormatRangeStartTo12Hour(p.TimeRange),
			Subject: p.Subject,
			Teacher: p.Teacher,
			Room:    p.Room,
		})
	}
	return out
}

func (s *Server) now() time.Time {
	if s.board != nil {
		return s.board.Now().Time
	}
	return time.Now().In(s.loc)
}

// handleBells lists every variant in tab order, marking today's.
func (s *Server) handleBells(w http.ResponseWriter, r *http.Request) {
	today := timetable.SelectFor(s.now())
	out := make([]variantDTO, 0, len(model.Variants))
	for _, v := range model.Variants {
		out = append(out, s.variantDTO(v, today))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBellVariant(w http.ResponseWriter, r *http.Request) {
	v := model.Variant(chi.URLParam(r, "variant"))
	if !v.Valid() {
		writeError(w, http.StatusNotFound, "unknown schedule variant")
		return
	}
	writeJSON(w, http.StatusOK, s.variantDTO(v, timetable.SelectFor(s.now())))
}

// icsCache keeps rendered week exports; the table is static so entries only
// go stale when the holiday set changes.
type icsCache struct {
	mu      sync.RWMutex
	entries map[string]icsEntry
}

type icsEntry struct {
	body     []byte
	holidays time.Time
}

func (c *icsCache) get(week string, holidays time.Time) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[week]
	if !ok || !e.holidays.Equal(holidays) {
		return nil, false
	}
	return e.body, true
}

func (c *icsCache) put(week string, holidays time.Time, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil || len(c.entries) > 64 {
		c.entries = map[string]icsEntry{}
	}
	c.entries[week] = icsEntry{body: body, holidays: holidays}
}

// handleBellsICS exports a school week. ?week=YYYY-MM-DD picks any day in
// the week; default is the current week.
func (s *Server) handleBellsICS(w http.ResponseWriter, r *http.Request) {
	day := s.now()
	if q := r.URL.Query().Get("week"); q != "" {
		t, err := time.ParseInLocation("2006-01-02", q, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "week must be YYYY-MM-DD")
			return
		}
		day = t
	}

	var skip func(time.Time) bool
	var holidaysAt time.Time
	if s.calendar != nil {
		skip = s.calendar.IsHoliday
		holidaysAt = s.calendar.Updated()
	}

	key := day.Format("2006-01-02")
	body, ok := s.icsWeeks.get(key, holidaysAt)
	if !ok {
		var err error
		body, err = ics.ExportWeekSkipping(s.schedules, day, s.loc, skip)
		if err != nil {
			appLog.Error("ics export failed", err, "week", key)
			writeError(w, http.StatusUnprocessableEntity, "bell table has a malformed time range")
			return
		}
		s.icsWeeks.put(key, holidaysAt, body)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="bell-times.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type resolveResponse struct {
	Variant      model.Variant `json:"variant"`
	At           string        `json:"at"`
	State        string        `json:"state"`
	InPeriod     bool          `json:"in_period"`
	Current      *model.Period `json:"current,omitempty"`
	Next         *model.Period `json:"next,omitempty"`
	UntilSeconds int           `json:"until_seconds"`
	Countdown    string        `json:"countdown"`
	Until        string        `json:"until"`
}

// handleResolve runs the resolver for an explicit time of day, ignoring the
// school-hours gate:
//
//	GET /api/resolve?variant=wed-thu&at=9:50
//
// variant defaults to today's.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := s.now()

	v := timetable.SelectFor(ref)
	if raw := q.Get("variant"); raw != "" {
		v = model.Variant(raw)
		if !v.Valid() {
			writeError(w, http.StatusBadRequest, "unknown schedule variant")
			return
		}
	}

	at := ref
	if raw := q.Get("at"); raw != "" {
		h, m, err := timetable.ParseClock(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be H:MM")
			return
		}
		at = time.Date(ref.Year(), ref.Month(), ref.Day(), h, m, 0, 0, ref.Location())
	}

	resp := resolveResponse{Variant: v, At: timetable.FormatClock(at)}
	res, err := timetable.Resolve(timetable.Periods(s.schedules, v), at)
	if err != nil {
		appLog.Error("resolve failed", err, "variant", string(v))
		resp.State = "unavailable"
		resp.Countdown = timetable.FormatCountdown(0)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.State = string(res.State)
	resp.InPeriod = res.InPeriod
	resp.Current = res.Current
	resp.Next = res.Next
	resp.UntilSeconds = int(res.Until / time.Second)
	resp.Countdown = timetable.FormatCountdown(res.Until)
	resp.Until = timetable.Describe(res, timetable.NoMoreClasses)
	writeJSON(w, http.StatusOK, resp)
}
