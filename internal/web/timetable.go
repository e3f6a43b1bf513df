package web

import (
	"net/http"
	"time"

	appLog "bellboard/internal/log"
	"bellboard/internal/model"
	"bellboard/internal/timetable"
)

type classDTO struct {
	Period  string `json:"period"`
	Subject string `json:"subject"`
	Teacher string `json:"teacher,omitempty"`
	Room    string `json:"room,omitempty"`
	Time    string `json:"time"`
	Start   string `json:"start"`
}

func newClassDTO(p *model.Period) *classDTO {
	if p == nil {
		return nil
	}
	return &classDTO{
		Period:  p.Label,
		Subject: p.Subject,
		Teacher: p.Teacher,
		Room:    p.Room,
		Time:    p.TimeRange,
		Start:   timetable.FormatRangeStartTo12Hour(p.TimeRange),
	}
}

// glanceDTO is today's "currently in / next up" card.
type glanceDTO struct {
	State     string    `json:"state"`
	InClass   bool      `json:"in_class"`
	Current   *classDTO `json:"current,omitempty"`
	Next      *classDTO `json:"next,omitempty"`
	Countdown string    `json:"countdown"`
	Until     string    `json:"until"`
}

type timetableResponse struct {
	Week      timetable.Week `json:"week"`
	Day       string         `json:"day"`
	Today     string         `json:"today"`
	Date      string         `json:"date"`
	Days      []string       `json:"days"`
	Classes   []classDTO     `json:"classes"`
	AtAGlance *glanceDTO     `json:"at_a_glance,omitempty"`
}

// currentWeek is the stored Week A/B choice, else the rotation from the
// configured anchor, else week A.
func (s *Server) currentWeek(now time.Time) timetable.Week {
	if s.prefs != nil {
		if w := s.prefs.Get().Week; w != "" {
			return w
		}
	}
	if !s.anchor.IsZero() {
		return timetable.WeekOf(now, s.anchor)
	}
	return timetable.WeekA
}

// handleTimetable lists one day of classes:
//
//	GET /api/timetable?week=B&day=Wednesday
//
// week defaults to currentWeek and day to today (Monday at weekends). The
// at-a-glance card is only filled in for today while a class is running or
// still to come.
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.now()
	today := timetable.DayName(now)

	week := s.currentWeek(now)
	if raw := q.Get("week"); raw != "" {
		wk, err := timetable.ParseWeek(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		week = wk
	}

	day := today
	if !timetable.IsSchoolDay(day) {
		day = timetable.SchoolDays[0]
	}
	if raw := q.Get("day"); raw != "" {
		if !timetable.IsSchoolDay(raw) {
			writeError(w, http.StatusBadRequest, "day must be Monday to Friday")
			return
		}
		day = raw
	}

	classes := timetable.Classes(s.classes, week, day)
	resp := timetableResponse{
		Week:    week,
		Day:     day,
		Today:   today,
		Date:    timetable.FormatDate(now),
		Days:    timetable.SchoolDays,
		Classes: make([]classDTO, 0, len(classes)),
	}
	for i := range classes {
		resp.Classes = append(resp.Classes, *newClassDTO(&classes[i]))
	}
	if day == today {
		resp.AtAGlance = glance(classes, now, week, day)
	}
	writeJSON(w, http.StatusOK, resp)
}

func glance(classes []model.Period, now time.Time, week timetable.Week, day string) *glanceDTO {
	res, err := timetable.Resolve(classes, now)
	if err != nil {
		appLog.Error("timetable resolve failed", err, "week", string(week), "day", day)
		return &glanceDTO{State: "unavailable", Countdown: timetable.FormatCountdown(0)}
	}
	if res.State == model.StateExhausted {
		return nil
	}
	return &glanceDTO{
		State:     string(res.State),
		InClass:   res.InPeriod,
		Current:   newClassDTO(res.Current),
		Next:      newClassDTO(res.Next),
		Countdown: timetable.FormatCountdown(res.Until),
		Until:     timetable.Describe(res, timetable.NoMoreClasses),
	}
}

type weekResponse struct {
	Week timetable.Week `json:"week"`
}

// handleToggleWeek flips the stored Week A/B choice and saves it.
func (s *Server) handleToggleWeek(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences not available")
		return
	}
	next := s.currentWeek(s.now()).Toggle()
	s.prefs.SetWeek(next)
	if err := s.prefs.Save(); err != nil {
		appLog.Error("prefs save failed", err)
	}
	writeJSON(w, http.StatusOK, weekResponse{Week: next})
}
