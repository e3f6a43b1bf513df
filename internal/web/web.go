// Package web serves the bell board API, the live countdown stream and the
// embedded front end.
package web

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"bellboard/internal/config"
	"bellboard/internal/holiday"
	appLog "bellboard/internal/log"
	"bellboard/internal/metrics"
	"bellboard/internal/model"
	"bellboard/internal/prefs"
	"bellboard/internal/ticker"
)

//go:embed all:static
var embeddedStatic embed.FS

//go:embed templates/*.html
var templateFS embed.FS

// Deps are the long-lived components the server reads from. Schedules is
// shared read-only with the board.
type Deps struct {
	Config    *config.Config
	Board     *ticker.Board
	Schedules model.Schedule
	Classes   model.ClassTimetable
	Prefs     *prefs.Store
	Calendar  *holiday.Calendar
}

// Server provides the HTTP surface.
type Server struct {
	cfg       *config.Config
	board     *ticker.Board
	schedules model.Schedule
	classes   model.ClassTimetable
	prefs     *prefs.Store
	calendar  *holiday.Calendar
	loc       *time.Location
	anchor    time.Time

	icsWeeks icsCache
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	loc := cfg.Location()
	return &Server{
		cfg:       cfg,
		board:     d.Board,
		schedules: d.Schedules,
		classes:   d.Classes,
		prefs:     d.Prefs,
		calendar:  d.Calendar,
		loc:       loc,
		anchor:    cfg.Anchor(loc),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if s.cfg.Auth.Enabled {
		appLog.Info("session auth enabled", "cookie", s.cfg.Auth.Cookie, "portal", s.cfg.Auth.PortalURL)
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))

		r.Get("/now", s.handleNow)
		r.Get("/countdown/ws", s.handleCountdownWS)

		r.Get("/bells", s.handleBells)
		r.Get("/bells.ics", s.handleBellsICS)
		r.Get("/bells/{variant}", s.handleBellVariant)
		r.Get("/resolve", s.handleResolve)

		r.Get("/timetable", s.handleTimetable)
		r.Post("/timetable/week", s.handleToggleWeek)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/usage/{section}", s.handleUsage)
		r.Get("/theme", s.handleTheme)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	})

	r.Get("/board", s.handleBoard)
	r.Get("/board.png", s.handleBoardPNG)

	r.Get("/auth", s.handleAuth)
	r.Get("/auth/callback", s.handleAuthCallback)

	r.Handle("/*", s.staticFileServer())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded front end from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

// handleBoardPNG serves the last capture written by the snapshot job.
func (s *Server) handleBoardPNG(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Snapshot.Output == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.cfg.Snapshot.Output)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
