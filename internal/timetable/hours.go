package timetable

import "time"

// Hours is the school operating window as [StartHour, EndHour) on weekdays.
type Hours struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// DefaultHours is 8 AM until 4 PM.
var DefaultHours = Hours{StartHour: 8, EndHour: 16}

// Contains reports whether t is a weekday with hour in [StartHour, EndHour).
func (h Hours) Contains(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := t.Hour()
	return hour >= h.StartHour && hour < h.EndHour
}

// IsOperatingNow is the default school-hours gate.
func IsOperatingNow(now time.Time) bool {
	return DefaultHours.Contains(now)
}
