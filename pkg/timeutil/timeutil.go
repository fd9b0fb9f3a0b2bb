// Package timeutil provides timezone utilities for the Dhaka timezone
// (UTC+6, no DST), where PoraKhela's learners are located. The dashboard
// aggregates ("points today", "lessons this week") are computed over
// local calendar windows from this package.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DhakaTZ is the Dhaka timezone (UTC+6, no DST).
// Bangladesh abandoned its DST experiment in 2009, so this is constant.
var DhakaTZ = time.FixedZone("Asia/Dhaka", 6*60*60)

// Now returns the current time in Dhaka timezone.
func Now() time.Time {
	return time.Now().In(DhakaTZ)
}

// ToDhaka converts a time to Dhaka timezone.
func ToDhaka(t time.Time) time.Time {
	return t.In(DhakaTZ)
}

// Date creates a time in Dhaka timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, DhakaTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Dhaka timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToDhaka(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, DhakaTZ)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in Dhaka timezone.
func StartOfWeek(t time.Time) time.Time {
	local := ToDhaka(t)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// DayRange returns the half-open interval [start, end) covering the local
// day containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// WeekRange returns the half-open interval [start, end) covering the
// local week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	start := StartOfWeek(t)
	return start, start.AddDate(0, 0, 7)
}

// IsToday checks if the given time is today in Dhaka timezone.
func IsToday(t time.Time) bool {
	now := Now()
	local := ToDhaka(t)
	return local.Year() == now.Year() && local.YearDay() == now.YearDay()
}

// IsSameDay checks if two times are on the same local day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToDhaka(t1), ToDhaka(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween calculates the number of local days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in Dhaka timezone.
func FormatDateStr(t time.Time) string {
	return ToDhaka(t).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in Dhaka timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, DhakaTZ)
}
