package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bellboard/internal/model"
)

// HolidayFeed is an ICS calendar listing pupil-free days.
type HolidayFeed struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
}

// SchoolHours is the weekday operating window, [StartHour, EndHour).
type SchoolHours struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// BellRelay drives a physical bell through a GPIO pin.
type BellRelay struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Pin is a periph.io pin name, e.g. "GPIO17".
	Pin string `yaml:"pin" json:"pin"`
	// PulseMillis is how long the relay is held closed per ring.
	PulseMillis int `yaml:"pulse_ms" json:"pulse_ms"`
}

// Auth configures the session cookie check in front of the UI.
type Auth struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Cookie is the session cookie set by the student portal.
	Cookie string `yaml:"cookie" json:"cookie"`
	// PortalURL is where unauthenticated users are sent to sign in.
	PortalURL string `yaml:"portal_url" json:"portal_url"`
}

// Snapshot configures headless captures of the bell board page.
type Snapshot struct {
	URL    string `yaml:"url" json:"url"`
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Environment is "development" or "production"; it selects log format.
	Environment string `yaml:"environment" json:"environment"`

	// Timezone is the IANA zone the school runs in (e.g. "Australia/Sydney").
	Timezone string `yaml:"timezone" json:"timezone"`

	SchoolHours SchoolHours `yaml:"school_hours" json:"school_hours"`

	// WeekAnchor is a date (YYYY-MM-DD) inside a week A; rotation is counted from it.
	WeekAnchor string `yaml:"week_anchor" json:"week_anchor"`

	// Tick is the cron spec (seconds field enabled) for the countdown tick.
	Tick string `yaml:"tick" json:"tick"`
	// DisplayTick is the cron spec for the coarse clock display tick.
	DisplayTick string `yaml:"display_tick" json:"display_tick"`

	// PrefsPath is the per-device preference file.
	PrefsPath string `yaml:"prefs_path" json:"prefs_path"`

	// CacheDir holds fetched holiday calendars.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Holidays []HolidayFeed `yaml:"holidays" json:"holidays"`
	// HolidayRefresh is the cron spec for re-fetching holiday feeds.
	HolidayRefresh string `yaml:"holiday_refresh" json:"holiday_refresh"`

	BellRelay BellRelay `yaml:"bell_relay" json:"bell_relay"`
	Auth      Auth      `yaml:"auth" json:"auth"`

	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	Snapshot Snapshot `yaml:"snapshot" json:"snapshot"`

	// Schedules, when set, replaces the built-in bell table.
	Schedules model.Schedule `yaml:"schedules,omitempty" json:"schedules,omitempty"`
	// Classes, when set, replaces the built-in Week A/B class timetable.
	Classes model.ClassTimetable `yaml:"classes,omitempty" json:"classes,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Australia/Sydney"
	defaultTick           = "@every 1s"
	defaultDisplayTick    = "0 * * * * *"
	defaultHolidayRefresh = "0 0 */6 * * *"
	defaultPortalURL      = "https://student.sbhs.net.au"
	defaultCookie         = "sbhs_session_id"
	defaultPulseMillis    = 1500
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		Environment:    "production",
		Timezone:       defaultTimezone,
		SchoolHours:    SchoolHours{StartHour: 8, EndHour: 16},
		WeekAnchor:     "",
		Tick:           defaultTick,
		DisplayTick:    defaultDisplayTick,
		PrefsPath:      "/var/lib/bellboard/prefs.yaml",
		CacheDir:       "/var/lib/bellboard/ics-cache",
		Holidays:       []HolidayFeed{},
		HolidayRefresh: defaultHolidayRefresh,
		BellRelay:      BellRelay{Enabled: false, Pin: "GPIO17", PulseMillis: defaultPulseMillis},
		Auth:           Auth{Enabled: false, Cookie: defaultCookie, PortalURL: defaultPortalURL},
		CORSOrigins:    []string{},
		Snapshot: Snapshot{
			URL:    "http://127.0.0.1:8080/board",
			Output: "/var/lib/bellboard/board.png",
			Width:  1024,
			Height: 600,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch c.Environment {
	case "development", "production":
	default:
		c.Environment = "production"
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}

	h := c.SchoolHours
	if h.StartHour < 0 || h.StartHour > 23 || h.EndHour <= h.StartHour || h.EndHour > 24 {
		c.SchoolHours = SchoolHours{StartHour: 8, EndHour: 16}
	}

	if c.Tick == "" {
		c.Tick = defaultTick
	}
	if c.DisplayTick == "" {
		c.DisplayTick = defaultDisplayTick
	}
	if c.HolidayRefresh == "" {
		c.HolidayRefresh = defaultHolidayRefresh
	}
	if c.PrefsPath == "" {
		c.PrefsPath = "./var/prefs.yaml"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.Holidays == nil {
		c.Holidays = []HolidayFeed{}
	}
	if c.BellRelay.PulseMillis <= 0 {
		c.BellRelay.PulseMillis = defaultPulseMillis
	}
	if c.Auth.Cookie == "" {
		c.Auth.Cookie = defaultCookie
	}
	if c.Auth.PortalURL == "" {
		c.Auth.PortalURL = defaultPortalURL
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1024
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 600
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and normalized.
//   - In both cases BELLBOARD_* environment variables (optionally from a
//     .env file next to the config) override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				applyEnv(cfg)
				cfg.Normalize()
				return cfg, err
			}
			applyEnv(cfg)
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	cfg.Normalize()

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is fine.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// applyEnv overlays BELLBOARD_* environment variables.
func applyEnv(c *Config) {
	if v := os.Getenv("BELLBOARD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("BELLBOARD_ENV"); v != "" {
		c.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("BELLBOARD_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("BELLBOARD_PREFS_PATH"); v != "" {
		c.PrefsPath = v
	}
	if v := os.Getenv("BELLBOARD_PORTAL_URL"); v != "" {
		c.Auth.PortalURL = v
	}
	if v := os.Getenv("BELLBOARD_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = b
		}
	}
	if v := os.Getenv("BELLBOARD_BELL_RELAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.BellRelay.Enabled = b
		}
	}
}

// Save writes the given configuration to path atomically (temp file +
// rename), creating the parent directory (0700) and leaving the file 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".bellboard-config-*.tmp")
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Anchor returns WeekAnchor as a date in loc. The zero time is returned when
// it is unset or unparseable; callers treat that as "no A/B rotation".
func (c *Config) Anchor(loc *time.Location) time.Time {
	if c.WeekAnchor == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", c.WeekAnchor, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
