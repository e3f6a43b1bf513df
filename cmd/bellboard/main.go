package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"bellboard/internal/bell"
	"bellboard/internal/capture"
	"bellboard/internal/config"
	"bellboard/internal/holiday"
	appLog "bellboard/internal/log"
	"bellboard/internal/model"
	"bellboard/internal/prefs"
	"bellboard/internal/ticker"
	"bellboard/internal/timetable"
	"bellboard/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   bool
	debug      bool
}

func main() {
	os.Exit(run(parseFlags()))
}

// run returns the exit code. Deferred flushes run before main exits.
func run(flags flagConfig) int {
	conf, err := config.Load(flags.configPath)
	if conf == nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	appLog.Setup(conf.Environment)
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	if err != nil {
		appLog.Error("failed to write default config", err, "config_path", flags.configPath)
	}

	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("bellboard starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"holiday_feeds", len(conf.Holidays),
		"bell_relay", conf.BellRelay.Enabled,
		"auth", conf.Auth.Enabled,
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	schedules, err := loadSchedules(conf)
	if err != nil {
		appLog.Error("invalid bell table", err)
		return 1
	}
	classes, err := loadClasses(conf)
	if err != nil {
		appLog.Error("invalid class timetable", err)
		return 1
	}

	loc := conf.Location()
	cal := holiday.NewCalendar(loc)
	fetcher := holiday.NewFetcher(conf.CacheDir, nil)
	feeds := holidayFeeds(conf.Holidays)

	board := ticker.New(ticker.Options{
		Schedules: schedules,
		Clock:     timetable.SystemClock{Location: loc},
		Gate: holiday.Gate{
			Hours:    timetable.Hours{StartHour: conf.SchoolHours.StartHour, EndHour: conf.SchoolHours.EndHour},
			Calendar: cal,
		},
		Anchor:      conf.Anchor(loc),
		Ringer:      bell.DefaultRinger(conf.BellRelay),
		Tick:        conf.Tick,
		DisplayTick: conf.DisplayTick,
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	refreshHolidays := func() {
		rctx, rcancel := context.WithTimeout(ctx, time.Minute)
		defer rcancel()
		if err := cal.Refresh(rctx, fetcher, feeds, time.Now().In(loc)); err != nil {
			appLog.Error("holiday refresh incomplete", err)
		}
	}

	if flags.once {
		refreshHolidays()
		if err := printSnapshot(board.Now()); err != nil {
			appLog.Error("failed to print snapshot", err)
			return 1
		}
		return 0
	}

	store := prefs.Open(conf.PrefsPath)
	defer func() {
		if err := store.Close(); err != nil {
			appLog.Error("failed to flush preferences", err, "path", conf.PrefsPath)
		}
	}()

	srv := &http.Server{
		Addr: conf.Listen,
		Handler: web.NewServer(web.Deps{
			Config:    conf,
			Board:     board,
			Schedules: schedules,
			Classes:   classes,
			Prefs:     store,
			Calendar:  cal,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if flags.snapshot {
		refreshHolidays()
		err := runSnapshot(ctx, conf)
		shutdown(srv)
		if err != nil {
			appLog.Error("snapshot failed", err)
			return 1
		}
		return 0
	}

	go refreshHolidays()

	jobs := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	if _, err := jobs.AddFunc(conf.HolidayRefresh, refreshHolidays); err != nil {
		appLog.Error("invalid holiday refresh schedule", err, "spec", conf.HolidayRefresh)
	}
	if _, err := jobs.AddFunc("@every 5m", func() {
		if err := store.Save(); err != nil {
			appLog.Error("periodic preference save failed", err)
		}
	}); err != nil {
		appLog.Error("failed to schedule preference saves", err)
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	if err := board.Start(ctx); err != nil {
		appLog.Error("failed to start board", err)
		shutdown(srv)
		return 1
	}

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok && err != nil {
			appLog.Error("HTTP server failed", err, "listen", conf.Listen)
			cancel()
		}
	}

	shutdown(srv)
	appLog.Info("bellboard exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/bellboard/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the current board snapshot as JSON and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture the board page to a PNG and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// loadSchedules returns the configured bell table, or the built-in one.
func loadSchedules(conf *config.Config) (model.Schedule, error) {
	if len(conf.Schedules) == 0 {
		return timetable.DefaultSchedules()
	}
	if err := timetable.Validate(conf.Schedules); err != nil {
		return nil, err
	}
	return conf.Schedules, nil
}

// loadClasses returns the configured class timetable, or the built-in one.
func loadClasses(conf *config.Config) (model.ClassTimetable, error) {
	if len(conf.Classes) == 0 {
		return timetable.DefaultClasses()
	}
	if err := timetable.ValidateClasses(conf.Classes); err != nil {
		return nil, err
	}
	return conf.Classes, nil
}

func holidayFeeds(in []config.HolidayFeed) []holiday.Feed {
	out := make([]holiday.Feed, 0, len(in))
	for i, f := range in {
		if f.URL == "" {
			continue
		}
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("feed-%d", i)
		}
		out = append(out, holiday.Feed{ID: id, URL: f.URL})
	}
	return out
}

func printSnapshot(s ticker.Snapshot) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// runSnapshot waits for the local server to answer, then captures the board.
func runSnapshot(ctx context.Context, conf *config.Config) error {
	opts := capture.OptionsFromConfig(conf.Snapshot)
	if err := waitHealthy(ctx, "http://"+conf.Listen+"/health", 10*time.Second); err != nil {
		return err
	}
	_, err := capture.CaptureBoardPNG(ctx, opts)
	return err
}

func waitHealthy(ctx context.Context, url string, within time.Duration) error {
	deadline := time.Now().Add(within)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server at %s not ready", url)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
}
