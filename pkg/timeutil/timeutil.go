// Package timeutil provides UTC day and month boundary helpers.
// Every cup schedule in the hub is expressed in UTC, so all boundaries
// here are UTC midnights.
package timeutil

import "time"

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDay returns midnight UTC of the day after t.
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// PreviousDay returns midnight UTC of the day before t.
func PreviousDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, -1)
}

// StartOfMonth returns midnight UTC on the first of the month containing t.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonth returns midnight UTC on the first of the following month.
func NextMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}
