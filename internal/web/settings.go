package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appLog "bellboard/internal/log"
	"bellboard/internal/prefs"
	"bellboard/internal/timetable"
)

type settingsResponse struct {
	prefs.Settings
	MostUsedSection prefs.Section `json:"most_used_section"`
	Palette         prefs.Palette `json:"palette"`
}

func settingsView(st prefs.Settings) settingsResponse {
	return settingsResponse{
		Settings:        st,
		MostUsedSection: st.MostUsedSection(),
		Palette:         prefs.PaletteFor(st.ColorTheme),
	}
}

// settingsUpdate is a partial update; absent fields are left alone.
type settingsUpdate struct {
	MostUsed    *string `json:"most_used"`
	ColorTheme  *string `json:"color_theme"`
	Week        *string `json:"week"`
	WelcomeSeen *bool   `json:"welcome_seen"`
}

func (u settingsUpdate) validate() error {
	if u.MostUsed != nil && *u.MostUsed != prefs.Auto {
		if _, err := prefs.ParseSection(*u.MostUsed); err != nil {
			return err
		}
	}
	if u.ColorTheme != nil {
		if _, err := prefs.ParseColorTheme(*u.ColorTheme); err != nil {
			return err
		}
	}
	if u.Week != nil && *u.Week != "" {
		if _, err := timetable.ParseWeek(*u.Week); err != nil {
			return errors.New("week must be A or B")
		}
	}
	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeJSON(w, http.StatusOK, settingsView(prefs.DefaultSettings()))
		return
	}
	writeJSON(w, http.StatusOK, settingsView(s.prefs.Get()))
}

// handlePutSettings applies a partial update and saves it.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences not available")
		return
	}

	var u settingsUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings body")
		return
	}
	if err := u.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := s.prefs.Update(func(st *prefs.Settings) {
		if u.MostUsed != nil {
			st.MostUsed = *u.MostUsed
		}
		if u.ColorTheme != nil {
			st.ColorTheme = prefs.ColorTheme(*u.ColorTheme)
		}
		if u.Week != nil {
			st.Week = timetable.Week(*u.Week)
		}
		if u.WelcomeSeen != nil {
			st.WelcomeSeen = *u.WelcomeSeen
		}
	})
	if err := s.prefs.Save(); err != nil {
		appLog.Error("prefs save failed", err)
	}
	writeJSON(w, http.StatusOK, settingsView(st))
}

// handleUsage counts one visit to a section. Counters are flushed at the
// next save point, not per visit.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	sec, err := prefs.ParseSection(chi.URLParam(r, "section"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown section")
		return
	}
	if s.prefs != nil {
		s.prefs.TrackSection(sec)
	}
	w.WriteHeader(http.StatusNoContent)
}

type themeResponse struct {
	Theme     prefs.ColorTheme   `json:"theme"`
	Themes    []prefs.ColorTheme `json:"themes"`
	Palette   prefs.Palette      `json:"palette"`
	Variables map[string]string  `json:"variables"`
}

// handleTheme returns the palette for ?theme=, or the saved theme.
func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	theme := prefs.DefaultSettings().ColorTheme
	if s.prefs != nil {
		theme = s.prefs.Get().ColorTheme
	}
	if raw := r.URL.Query().Get("theme"); raw != "" {
		t, err := prefs.ParseColorTheme(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		theme = t
	}
	p := prefs.PaletteFor(theme)
	writeJSON(w, http.StatusOK, themeResponse{Theme: theme, Themes: prefs.Themes, Palette: p, Variables: p.CSSVariables()})
}
