package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"bellboard/internal/config"
	"bellboard/internal/holiday"
	"bellboard/internal/model"
	"bellboard/internal/prefs"
	"bellboard/internal/ticker"
	"bellboard/internal/timetable"
)

// tuesday 2025-05-13 10:30 UTC, inside Period 2 of the default table.
var tuesday = time.Date(2025, time.May, 13, 10, 30, 0, 0, time.UTC)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	srv     *Server
	handler http.Handler
	board   *ticker.Board
	clock   *stepClock
	prefs   *prefs.Store
	path    string
}

func newFixture(t *testing.T, schedules model.Schedule, mutate func(*config.Config)) *fixture {
	t.Helper()
	if schedules == nil {
		var err error
		schedules, err = timetable.DefaultSchedules()
		require.NoError(t, err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Snapshot.Output = ""
	if mutate != nil {
		mutate(cfg)
	}

	classes, err := timetable.DefaultClasses()
	require.NoError(t, err)

	clock := &stepClock{t: tuesday}
	cal := holiday.NewCalendar(time.UTC)
	board := ticker.New(ticker.Options{
		Schedules: schedules,
		Clock:     clock,
		Gate:      holiday.Gate{Hours: timetable.DefaultHours, Calendar: cal},
	})
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.Open(path)

	srv := NewServer(Deps{Config: cfg, Board: board, Schedules: schedules, Classes: classes, Prefs: store, Calendar: cal})
	return &fixture{srv: srv, handler: srv.Handler(), board: board, clock: clock, prefs: store, path: path}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNow(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/api/now", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[ticker.Snapshot](t, rec)
	assert.Equal(t, "in_period", snap.State)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "Period 2", snap.Current.Label)
	assert.Equal(t, "35:00", snap.Countdown)
}

func TestBells(t *testing.T) {
	f := newFixture(t, nil, nil)

	all := decode[[]variantDTO](t, f.do(t, http.MethodGet, "/api/bells", ""))
	require.Len(t, all, 3)
	assert.Equal(t, model.VariantMonTue, all[0].Variant)
	assert.True(t, all[0].Today)
	assert.Equal(t, "Mon/Tues", all[0].Name)
	assert.Equal(t, "9:00 AM", all[0].Periods[0].Start)
	assert.Equal(t, "1:05 PM", all[0].Periods[6].Start)

	fri := f.do(t, http.MethodGet, "/api/bells/fri", "")
	require.Equal(t, http.StatusOK, fri.Code)
	assert.Equal(t, "9:25 AM", decode[variantDTO](t, fri).Periods[0].Start)

	missing := f.do(t, http.MethodGet, "/api/bells/sat", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Body.String(), "unknown schedule variant")
}

func TestBellsICS(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/bells.ics?week=2025-05-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 44, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))

	again := f.do(t, http.MethodGet, "/api/bells.ics?week=2025-05-14", "")
	assert.Equal(t, rec.Body.String(), again.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/bells.ics?week=14/05/2025", "").Code)
}

func TestResolveScenario(t *testing.T) {
	scenario := model.Schedule{
		model.VariantMonTue: {
			{Label: "Period 1", TimeRange: "09:00 - 09:50"},
			{Label: "Recess", TimeRange: "09:50 - 10:10"},
			{Label: "Period 2", TimeRange: "10:10 - 11:00"},
		},
	}
	f := newFixture(t, scenario, nil)

	r := decode[resolveResponse](t, f.do(t, http.MethodGet, "/api/resolve?at=9:30", ""))
	assert.Equal(t, "in_period", r.State)
	assert.Equal(t, "Period 1", r.Current.Label)
	assert.Equal(t, "Recess", r.Next.Label)
	assert.Equal(t, "20 min until end", r.Until)
	assert.Equal(t, 1200, r.UntilSeconds)

	r = decode[resolveResponse](t, f.do(t, http.MethodGet, "/api/resolve?variant=mon-tue&at=9:50", ""))
	assert.Equal(t, "Recess", r.Current.Label)
	assert.Equal(t, "Period 2", r.Next.Label)

	r = decode[resolveResponse](t, f.do(t, http.MethodGet, "/api/resolve?at=11:30", ""))
	assert.Equal(t, "exhausted", r.State)
	assert.Equal(t, timetable.NoMoreClasses, r.Until)
	assert.Equal(t, "00:00", r.Countdown)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/resolve?at=noon", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/resolve?variant=sat", "").Code)
}

func TestResolveMalformedIsUnavailable(t *testing.T) {
	f := newFixture(t, model.Schedule{
		model.VariantMonTue: {{Label: "Period 1", TimeRange: "9am - 10am"}},
	}, nil)

	rec := f.do(t, http.MethodGet, "/api/resolve?at=9:30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unavailable", decode[resolveResponse](t, rec).State)

	now := f.do(t, http.MethodGet, "/api/now", "")
	require.Equal(t, http.StatusOK, now.Code)
	assert.Equal(t, ticker.StateUnavailable, decode[ticker.Snapshot](t, now).State)
}

func TestSettings(t *testing.T) {
	f := newFixture(t, nil, nil)

	got := decode[settingsResponse](t, f.do(t, http.MethodGet, "/api/settings", ""))
	assert.Equal(t, prefs.ThemeBlue, got.ColorTheme)
	assert.Equal(t, prefs.SectionTimetable, got.MostUsedSection)

	rec := f.do(t, http.MethodPut, "/api/settings", `{"color_theme":"purple","most_used":"awards","week":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[settingsResponse](t, rec)
	assert.Equal(t, prefs.ThemePurple, got.ColorTheme)
	assert.Equal(t, "262 83% 58%", got.Palette.Primary)
	assert.Equal(t, prefs.SectionAwards, got.MostUsedSection)
	assert.Equal(t, timetable.WeekB, got.Week)

	// PUT is a save point.
	assert.Equal(t, prefs.ThemePurple, prefs.Open(f.path).Get().ColorTheme)

	for _, body := range []string{`{"color_theme":"teal"}`, `{"most_used":"homework"}`, `{"week":"C"}`, `{"colour":"red"}`, `not json`} {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/settings", body).Code, body)
	}
}

func TestUsage(t *testing.T) {
	f := newFixture(t, nil, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/usage/bell-times", "").Code)
	}
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/usage/homework", "").Code)

	got := decode[settingsResponse](t, f.do(t, http.MethodGet, "/api/settings", ""))
	assert.Equal(t, prefs.SectionBellTimes, got.MostUsedSection)
	assert.Equal(t, 2, got.Usage[prefs.SectionBellTimes])
}

func TestTheme(t *testing.T) {
	f := newFixture(t, nil, nil)

	got := decode[themeResponse](t, f.do(t, http.MethodGet, "/api/theme?theme=green", ""))
	assert.Equal(t, prefs.ThemeGreen, got.Theme)
	assert.Equal(t, "142 76% 36%", got.Variables["--theme-primary"])
	assert.Len(t, got.Themes, 5)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/theme?theme=teal", "").Code)
}

func TestBoardPage(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodGet, "/board", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, `data-state="in_period"`)
	assert.Contains(t, body, "Period 2 ends in")
	assert.Contains(t, body, "35:00")
	assert.Contains(t, body, "--theme-primary: 217 91% 60%;")
	assert.Contains(t, body, `<tr class="active"><td>Period 2</td>`)
}

func TestBoardFollowsDisplayTick(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.board.RefreshDisplay()

	f.clock.Set(time.Date(2025, time.May, 13, 11, 10, 0, 0, time.UTC))
	body := f.do(t, http.MethodGet, "/board", "").Body.String()
	assert.Contains(t, body, "Period 2 ends in", "board holds the last display tick")

	f.board.RefreshDisplay()
	body = f.do(t, http.MethodGet, "/board", "").Body.String()
	assert.Contains(t, body, "Recess ends in")
	assert.Contains(t, body, "15:00")
	assert.Contains(t, body, `<tr class="active"><td>Recess</td>`)
}

func TestTimetable(t *testing.T) {
	f := newFixture(t, nil, nil)

	got := decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Equal(t, timetable.WeekA, got.Week)
	assert.Equal(t, "Tuesday", got.Day)
	assert.Equal(t, "Tuesday", got.Today)
	assert.Len(t, got.Days, 5)
	require.Len(t, got.Classes, 7)
	assert.Equal(t, "Science", got.Classes[0].Subject)
	assert.Equal(t, "9:00 AM", got.Classes[0].Start)

	require.NotNil(t, got.AtAGlance)
	assert.True(t, got.AtAGlance.InClass)
	assert.Equal(t, "Maths", got.AtAGlance.Current.Subject)
	assert.Equal(t, "B12", got.AtAGlance.Current.Room)
	assert.Equal(t, "Recess", got.AtAGlance.Next.Period)
	assert.Equal(t, "35:00", got.AtAGlance.Countdown)
	assert.Equal(t, "35 min until end", got.AtAGlance.Until)

	other := decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable?week=B&day=Friday", ""))
	assert.Equal(t, timetable.WeekB, other.Week)
	assert.Equal(t, "French", other.Classes[0].Subject)
	assert.Nil(t, other.AtAGlance, "no card for other days")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timetable?week=C", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timetable?day=Saturday", "").Code)

	f.clock.Set(time.Date(2025, time.May, 13, 16, 0, 0, 0, time.UTC))
	late := decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Nil(t, late.AtAGlance, "no card once the day's classes are over")

	f.clock.Set(time.Date(2025, time.May, 17, 10, 0, 0, 0, time.UTC))
	weekend := decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Equal(t, "Monday", weekend.Day)
	assert.Equal(t, "Saturday", weekend.Today)
	assert.Nil(t, weekend.AtAGlance)
}

func TestTimetableWeekSources(t *testing.T) {
	// 2025-05-05 is the Monday of the week before the fixture's Tuesday.
	f := newFixture(t, nil, func(c *config.Config) { c.WeekAnchor = "2025-05-05" })

	got := decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Equal(t, timetable.WeekB, got.Week, "rotation from the anchor")

	rec := f.do(t, http.MethodPost, "/api/timetable/week", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timetable.WeekA, decode[weekResponse](t, rec).Week)
	assert.Equal(t, timetable.WeekA, prefs.Open(f.path).Get().Week, "toggle is saved")

	got = decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Equal(t, timetable.WeekA, got.Week, "stored choice wins")
	assert.Equal(t, "Science", got.Classes[0].Subject)

	rec = f.do(t, http.MethodPut, "/api/settings", `{"week":""}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[timetableResponse](t, f.do(t, http.MethodGet, "/api/timetable", ""))
	assert.Equal(t, timetable.WeekB, got.Week, "clearing the choice follows the calendar again")
}

func TestStaticAndUnknownAPI(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/app.js")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nope", "").Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.Auth.Enabled = true })

	t.Run("redirects pages without a session", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/auth", rec.Header().Get("Location"))
	})

	t.Run("accepts cookie and bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sbhs_session_id", Value: "abc"})
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("auth page", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/auth", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://student.sbhs.net.au", rec.Header().Get("Location"))

		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("callback always passes", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/auth/callback?token=xyz", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "sbhs_session_id", cookies[0].Name)
		assert.Equal(t, "xyz", cookies[0].Value)
	})

	t.Run("excluded paths", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/now", "").Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/app.css", "").Code)
	})

	t.Run("board is open for the headless capture", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/board", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Contains(t, rec.Body.String(), `data-ready="true"`)

		assert.NotEqual(t, http.StatusFound, f.do(t, http.MethodGet, "/board.png", "").Code)
	})
}

func TestCountdownWebsocket(t *testing.T) {
	f := newFixture(t, nil, nil)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/countdown/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first ticker.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "35:00", first.Countdown)

	f.board.Tick(ctx)
	var second ticker.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, "in_period", second.State)
}
