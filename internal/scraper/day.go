package scraper

import "time"

// Broadcast days travel as integers (YYYYMMDD), matching the upstream
// feed's own enumeration.

func DayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func TimeFromDay(day int) time.Time {
	return time.Date(day/10000, time.Month(day/100%100), day%100, 0, 0, 0, 0, time.UTC)
}

// PrevDay steps one calendar day backward, correctly across month and
// year boundaries.
func PrevDay(day int) int {
	return DayFromTime(TimeFromDay(day).AddDate(0, 0, -1))
}
