package model

import "time"

// Period is one entry of a day's bell schedule. TimeRange is the textual
// "H:MM - H:MM" interval; the descriptive fields are carried through to the
// presentation layer untouched.
type Period struct {
	Label     string `yaml:"label" json:"label"`
	TimeRange string `yaml:"time" json:"time"`

	Subject string `yaml:"subject,omitempty" json:"subject,omitempty"`
	Teacher string `yaml:"teacher,omitempty" json:"teacher,omitempty"`
	Room    string `yaml:"room,omitempty" json:"room,omitempty"`
}

// Variant names one of the weekly bell patterns.
type Variant string

const (
	VariantMonTue Variant = "mon-tue"
	VariantWedThu Variant = "wed-thu"
	VariantFri    Variant = "fri"
)

// Variants lists every variant in display order.
var Variants = []Variant{VariantMonTue, VariantWedThu, VariantFri}

// DisplayName returns the label shown on schedule tabs.
func (v Variant) DisplayName() string {
	switch v {
	case VariantMonTue:
		return "Mon/Tues"
	case VariantWedThu:
		return "Wed/Thurs"
	case VariantFri:
		return "Fri"
	default:
		return string(v)
	}
}

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantMonTue, VariantWedThu, VariantFri:
		return true
	}
	return false
}

// Schedule maps each variant to its ordered period list. It is loaded once
// and must be treated as read-only afterwards.
type Schedule map[Variant][]Period

// ClassTimetable is a fortnight of classes keyed by rotation week ("A" or
// "B") and then weekday name ("Monday".."Friday"). Each Period's Label is
// the period name shown on the timetable ("1", "Recess").
type ClassTimetable map[string]map[string][]Period

// State is the tri-state outcome of resolving a schedule against an instant.
type State string

const (
	StateInPeriod     State = "in_period"
	StateBeforePeriod State = "before_period"
	StateExhausted    State = "exhausted"
)

// Resolution is the transient result of one resolver call.
type Resolution struct {
	Current *Period
	Next    *Period
	// InPeriod mirrors State == StateInPeriod.
	InPeriod bool
	// Until is the time to the end of Current, or to the start of Next when
	// not in a period. Zero when exhausted.
	Until time.Duration
	State State
}
