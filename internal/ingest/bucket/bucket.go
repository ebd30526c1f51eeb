// Package bucket derives calendar bucket keys from message epochs. The same
// functions tag vector metadata and select rollup buckets; a mismatch would
// silently misfile rollups, so this is the only implementation in the tree.
package bucket

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DayKey returns the UTC day key YYYY-MM-DD for an epoch.
func DayKey(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(dayLayout)
}

// WeekKey returns the ISO-8601 week key YYYY-Www for an epoch. Week 1 is the
// week containing the year's first Thursday; Monday starts the week.
func WeekKey(epoch int64) string {
	year, week := time.Unix(epoch, 0).UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthKey returns the UTC month key YYYY-MM for an epoch.
func MonthKey(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01")
}

// ParseDay parses a day key back into a UTC time at midnight.
func ParseDay(dayKey string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, dayKey, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", dayKey, err)
	}
	return t, nil
}

// WeekOfDay returns the ISO week key of the week containing dayKey.
func WeekOfDay(dayKey string) (string, error) {
	t, err := ParseDay(dayKey)
	if err != nil {
		return "", err
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week), nil
}

// MonthOfDay returns the month key of the month containing dayKey.
func MonthOfDay(dayKey string) (string, error) {
	t, err := ParseDay(dayKey)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01"), nil
}

// WeekDays returns the seven day keys (Monday through Sunday) of the ISO
// week containing dayKey.
func WeekDays(dayKey string) ([]string, error) {
	t, err := ParseDay(dayKey)
	if err != nil {
		return nil, err
	}
	// Rewind to Monday. time.Weekday numbers Sunday as 0.
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)

	days := make([]string, 7)
	for i := 0; i < 7; i++ {
		days[i] = monday.AddDate(0, 0, i).Format(dayLayout)
	}
	return days, nil
}

// MonthDays returns every day key of the calendar month containing dayKey.
func MonthDays(dayKey string) ([]string, error) {
	t, err := ParseDay(dayKey)
	if err != nil {
		return nil, err
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)

	var days []string
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dayLayout))
	}
	return days, nil
}
