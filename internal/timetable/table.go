package timetable

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"bellboard/internal/model"
)

//go:embed bells.yaml
var defaultBells []byte

// ErrUnorderedSchedule is returned by Validate when a period starts before
// the one listed ahead of it.
var ErrUnorderedSchedule = errors.New("timetable: periods out of order")

// DefaultSchedules returns a fresh copy of the built-in bell table.
func DefaultSchedules() (model.Schedule, error) {
	return ParseSchedules(defaultBells)
}

// ParseSchedules decodes a YAML bell table keyed by variant name and
// validates it.
func ParseSchedules(data []byte) (model.Schedule, error) {
	var s model.Schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("timetable: decode bell table: %w", err)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that every variant is known, every range parses, no range
// ends before it starts, and starts are non-decreasing.
func Validate(s model.Schedule) error {
	for v, periods := range s {
		if !v.Valid() {
			return fmt.Errorf("timetable: unknown schedule variant %q", v)
		}
		if err := validatePeriods("variant "+string(v), periods); err != nil {
			return err
		}
	}
	return nil
}

func validatePeriods(where string, periods []model.Period) error {
	ref := time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)
	var prev time.Time
	for i, p := range periods {
		start, end, err := ParseRange(p.TimeRange, ref)
		if err != nil {
			return fmt.Errorf("%s period %q: %w", where, p.Label, err)
		}
		if end.Before(start) {
			return fmt.Errorf("%s period %q: %w: ends before it starts", where, p.Label, ErrMalformedRange)
		}
		if i > 0 && start.Before(prev) {
			return fmt.Errorf("%s period %q: %w", where, p.Label, ErrUnorderedSchedule)
		}
		prev = start
	}
	return nil
}

// Periods returns the period list for v, or nil when the table has none.
func Periods(s model.Schedule, v model.Variant) []model.Period {
	return s[v]
}
