package timetable

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"bellboard/internal/model"
)

//go:embed classes.yaml
var defaultClasses []byte

// SchoolDays lists the weekdays a class timetable covers, in order.
var SchoolDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// IsSchoolDay reports whether day is one of SchoolDays.
func IsSchoolDay(day string) bool {
	for _, d := range SchoolDays {
		if d == day {
			return true
		}
	}
	return false
}

// DefaultClasses returns a fresh copy of the built-in class timetable.
func DefaultClasses() (model.ClassTimetable, error) {
	return ParseClasses(defaultClasses)
}

// ParseClasses decodes a YAML class timetable and validates it.
func ParseClasses(data []byte) (model.ClassTimetable, error) {
	var ct model.ClassTimetable
	if err := yaml.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("timetable: decode class timetable: %w", err)
	}
	if err := ValidateClasses(ct); err != nil {
		return nil, err
	}
	return ct, nil
}

// ValidateClasses checks week and day keys, then each day's periods the way
// Validate checks a bell table.
func ValidateClasses(ct model.ClassTimetable) error {
	for w, days := range ct {
		if _, err := ParseWeek(w); err != nil {
			return err
		}
		for day, periods := range days {
			if !IsSchoolDay(day) {
				return fmt.Errorf("timetable: week %s: unknown day %q", w, day)
			}
			if err := validatePeriods("week "+w+" "+day, periods); err != nil {
				return err
			}
		}
	}
	return nil
}

// Classes returns the classes for one day of week w, or nil.
func Classes(ct model.ClassTimetable, w Week, day string) []model.Period {
	return ct[string(w)][day]
}
