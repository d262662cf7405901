package amr

import "time"

const dayLayout = "2006-01-02"

// Day returns the UTC midnight for the given calendar date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay normalises t to UTC midnight of its own calendar date.
func TruncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, value, time.UTC)
}

// FormatDay formats a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// DaysBetween returns the whole number of days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(TruncateDay(end).Sub(TruncateDay(start)).Hours() / 24)
}

// EachDay calls fn for every day in [start, end]; fn returning false stops the walk.
func EachDay(start, end time.Time, fn func(day time.Time) bool) {
	end = TruncateDay(end)
	for d := TruncateDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if !fn(d) {
			return
		}
	}
}

// IsWeekend reports whether the day is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// DaysInQuarter returns the number of days in t's calendar quarter.
func DaysInQuarter(t time.Time) int {
	startMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
	first := time.Date(t.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)
	return DaysBetween(first, first.AddDate(0, 3, 0))
}
