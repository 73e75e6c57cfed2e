package domain

import (
	"fmt"
	"time"
)

const monthKeyLayout = "2006-01"

// MonthKey renders the UTC calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// ParseMonthKey parses a YYYY-MM key into the first instant of that month (UTC).
func ParseMonthKey(key string) (time.Time, error) {
	start, err := time.ParseInLocation(monthKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", key)
	}
	return start, nil
}

// MonthRange returns [monthStart, nextMonthStart) for the given YYYY-MM key.
func MonthRange(key string) (time.Time, time.Time, error) {
	start, err := ParseMonthKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

// YearMonthKeys returns the half-open key range [year-01, year+1-01).
func YearMonthKeys(year int) (string, string) {
	return fmt.Sprintf("%04d-01", year), fmt.Sprintf("%04d-01", year+1)
}

// ISOWeekKey renders the ISO-8601 week of t (UTC) as YYYY-Www.
func ISOWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
