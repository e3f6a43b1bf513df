// Package prefs holds per-device user preferences: the pinned "most used"
// section, the colour theme, section usage counters and a few UI flags.
//
// A Store keeps the settings in memory and only touches disk at explicit
// save points (Save, and Close on shutdown).
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"bellboard/internal/config"
	appLog "bellboard/internal/log"
	"bellboard/internal/timetable"
)

// Section is a top-level area of the app.
type Section string

const (
	SectionHome      Section = "home"
	SectionTimetable Section = "timetable"
	SectionNotices   Section = "notices"
	SectionBellTimes Section = "bell-times"
	SectionClipboard Section = "clipboard"
	SectionAwards    Section = "awards"
)

// Sections lists sections in navigation order.
var Sections = []Section{SectionHome, SectionTimetable, SectionNotices, SectionBellTimes, SectionClipboard, SectionAwards}

// Auto means "pick the most used section from usage counts".
const Auto = "auto"

var ErrUnknownSection = errors.New("prefs: unknown section")

// ParseSection validates a section name.
func ParseSection(s string) (Section, error) {
	for _, sec := range Sections {
		if string(sec) == s {
			return sec, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
}

// Settings is the persisted preference record.
type Settings struct {
	// MostUsed is Auto or a Section name pinned by the user.
	MostUsed    string          `yaml:"most_used" json:"most_used"`
	ColorTheme  ColorTheme      `yaml:"color_theme" json:"color_theme"`
	Week        timetable.Week  `yaml:"week,omitempty" json:"week,omitempty"`
	WelcomeSeen bool            `yaml:"welcome_seen" json:"welcome_seen"`
	Usage       map[Section]int `yaml:"usage" json:"usage"`
}

// DefaultSettings is what a fresh device starts with.
func DefaultSettings() Settings {
	return Settings{
		MostUsed:   Auto,
		ColorTheme: ThemeBlue,
		Usage:      map[Section]int{},
	}
}

func (s *Settings) normalize() {
	if s.MostUsed == "" {
		s.MostUsed = Auto
	} else if s.MostUsed != Auto {
		if _, err := ParseSection(s.MostUsed); err != nil {
			s.MostUsed = Auto
		}
	}
	if _, err := ParseColorTheme(string(s.ColorTheme)); err != nil {
		s.ColorTheme = ThemeBlue
	}
	if _, err := timetable.ParseWeek(string(s.Week)); err != nil {
		s.Week = ""
	}
	if s.Usage == nil {
		s.Usage = map[Section]int{}
	}
	for k := range s.Usage {
		if _, err := ParseSection(string(k)); err != nil {
			delete(s.Usage, k)
		}
	}
}

func (s Settings) clone() Settings {
	usage := make(map[Section]int, len(s.Usage))
	for k, v := range s.Usage {
		usage[k] = v
	}
	s.Usage = usage
	return s
}

// MostUsedSection returns the pinned section, or the section with the highest
// usage count when the preference is Auto. Ties go to the earlier section in
// navigation order; no usage at all yields the timetable.
func (s Settings) MostUsedSection() Section {
	if s.MostUsed != Auto {
		if sec, err := ParseSection(s.MostUsed); err == nil {
			return sec
		}
	}

	best, bestCount := SectionTimetable, 0
	for _, sec := range Sections {
		if n := s.Usage[sec]; n > bestCount {
			best, bestCount = sec, n
		}
	}
	return best
}

// Store is the in-memory settings cache backed by a YAML file.
type Store struct {
	path string

	mu       sync.RWMutex
	settings Settings
	dirty    bool
}

// Open reads the settings file at path. A missing or unreadable file is not
// an error: the store starts from defaults and the problem is logged.
func Open(path string) *Store {
	st := &Store{path: path, settings: DefaultSettings()}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("prefs read failed; using defaults", err, "path", path)
		}
		return st
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		appLog.Error("prefs decode failed; using defaults", err, "path", path)
		return st
	}
	s.normalize()
	st.settings = s
	return st
}

// Get returns a copy of the current settings.
func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings.clone()
}

// Update applies fn to a copy of the settings and keeps the normalized result
// in memory. Nothing is written until Save.
func (st *Store) Update(fn func(*Settings)) Settings {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.settings.clone()
	fn(&s)
	s.normalize()
	st.settings = s
	st.dirty = true
	return s.clone()
}

// SetWeek stores the user's Week A/B choice; "" follows the calendar.
func (st *Store) SetWeek(w timetable.Week) {
	st.Update(func(s *Settings) { s.Week = w })
}

// TrackSection increments the usage counter for sec.
func (st *Store) TrackSection(sec Section) {
	st.Update(func(s *Settings) { s.Usage[sec]++ })
}

// Save writes the settings to disk when they changed since the last save.
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}
	data, err := yaml.Marshal(st.settings)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(st.path, data, ".bellboard-prefs-*.tmp"); err != nil {
		return fmt.Errorf("prefs: save %s: %w", st.path, err)
	}
	st.dirty = false
	return nil
}

// Close flushes pending changes.
func (st *Store) Close() error {
	return st.Save()
}
