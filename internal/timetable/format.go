package timetable

import (
	"fmt"
	"time"
)

// FormatCountdown renders d as zero-padded "MM:SS". Zero and negative
// durations clamp to "00:00". Minutes are not wrapped at the hour, so a
// 75 minute countdown reads "75:00".
func FormatCountdown(d time.Duration) string {
	return FormatCountdownSeconds(int(d / time.Second))
}

func FormatCountdownSeconds(secs int) string {
	if secs <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FormatClock renders the time of day as 24-hour "H:MM".
func FormatClock(t time.Time) string {
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}

// FormatTo12Hour renders "h:MM AM/PM"; midnight is 12 AM and midday 12 PM.
func FormatTo12Hour(t time.Time) string {
	return format12(t.Hour(), t.Minute())
}

// FormatClockTo12Hour converts a "H:MM" string to 12-hour form. Unparseable
// input is returned unchanged.
func FormatClockTo12Hour(text string) string {
	h, m, err := ParseClock(text)
	if err != nil {
		return text
	}
	return format12(h, m)
}

// FormatRangeStartTo12Hour renders the start of a "H:MM - H:MM" range in
// 12-hour form, e.g. "13:05 - 14:00" -> "1:05 PM".
func FormatRangeStartTo12Hour(rangeText string) string {
	start, err := RangeStart(rangeText)
	if err != nil {
		return ""
	}
	return FormatClockTo12Hour(start)
}

func format12(hour, minute int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, suffix)
}

// FormatDate renders "January 2, 2006".
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// DayName returns the English weekday name of t.
func DayName(t time.Time) string {
	return t.Weekday().String()
}
