package web

import (
	"html/template"
	"net/http"
	"sort"
	"strings"

	appLog "bellboard/internal/log"
	"bellboard/internal/prefs"
	"bellboard/internal/ticker"
	"bellboard/internal/timetable"
)

var boardTmpl = template.Must(template.ParseFS(templateFS, "templates/board.html"))

type boardRow struct {
	Label  string
	Start  string
	Time   string
	Active bool
}

type boardPage struct {
	Snap      ticker.Snapshot
	Rows      []boardRow
	Variables template.CSS
}

// rootVariables renders the palette as a :root rule. Palettes are internal
// constants, so the result is trusted CSS.
func rootVariables(p prefs.Palette) template.CSS {
	vars := p.CSSVariables()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {")
	for _, k := range keys {
		b.WriteString(" " + k + ": " + vars[k] + ";")
	}
	b.WriteString(" }")
	return template.CSS(b.String())
}

// handleBoard renders the corridor board from the display tick's snapshot.
// It is static HTML so the headless capture does not depend on scripts.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		http.Error(w, "board not running", http.StatusServiceUnavailable)
		return
	}
	snap := s.board.Display()

	theme := prefs.DefaultSettings().ColorTheme
	if s.prefs != nil {
		theme = s.prefs.Get().ColorTheme
	}

	page := boardPage{Snap: snap, Variables: rootVariables(prefs.PaletteFor(theme))}
	for _, p := range timetable.Periods(s.schedules, snap.Variant) {
		page.Rows = append(page.Rows, boardRow{
			Label:  p.Label,
			Start:  timetable.FormatRangeStartTo12Hour(p.TimeRange),
			Time:   p.TimeRange,
			Active: snap.Current != nil && snap.Current.Label == p.Label && snap.Current.TimeRange == p.TimeRange,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := boardTmpl.Execute(w, page); err != nil {
		appLog.Error("board render failed", err)
	}
}
