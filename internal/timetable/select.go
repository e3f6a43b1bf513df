package timetable

import (
	"time"

	"bellboard/internal/model"
)

// SelectSchedule maps a weekday name to its bell pattern. Weekends and
// unknown names fall back to VariantMonTue; the school-hours gate keeps that
// fallback from ever being shown.
func SelectSchedule(day string) model.Variant {
	switch day {
	case "Monday", "Tuesday":
		return model.VariantMonTue
	case "Wednesday", "Thursday":
		return model.VariantWedThu
	case "Friday":
		return model.VariantFri
	default:
		return model.VariantMonTue
	}
}

// SelectFor is SelectSchedule for the weekday of t.
func SelectFor(t time.Time) model.Variant {
	return SelectSchedule(DayName(t))
}
