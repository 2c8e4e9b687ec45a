package service

import (
	"time"
)

// WeekStart returns midnight UTC of the most recent startDay on or before t
func WeekStart(t time.Time, startDay time.Weekday) time.Time {
	day := DateOf(t)
	offset := (int(day.Weekday()) - int(startDay) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// DateOf truncates t to midnight UTC of its calendar day
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CeilMinutes converts seconds to whole minutes, rounding up
func CeilMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}
