// Package ansidate converts between Go times and the 8-digit YYYYMMDD date
// form the ILS flat format requires, and does the calendar arithmetic the
// registration policies need (whole-year ages, N days from today).
package ansidate

import (
	"errors"
	"strings"
	"time"
)

// Layout is the ANSI date layout.
const Layout = "20060102"

// ErrUnparseable is returned when no accepted layout matches.
var ErrUnparseable = errors.New("unparseable date")

// Accepted input layouts, most specific first. Date-only layouts are
// interpreted at midnight in the caller's location.
var layouts = []string{
	"2006-01-02",
	Layout,
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ToANSI renders t as YYYYMMDD.
func ToANSI(t time.Time) string {
	return t.Format(Layout)
}

// FromANSI parses a YYYYMMDD string at local midnight.
func FromANSI(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, ErrUnparseable
	}
	return t, nil
}

// Parse accepts the common date shapes partners send and returns the
// calendar day at midnight in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseable
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return Midnight(t.In(loc)), nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysFrom returns local midnight of today plus n calendar days.
func DaysFrom(today time.Time, n int) time.Time {
	return Midnight(today).AddDate(0, 0, n)
}

// Age returns the number of whole years between dob and today.
func Age(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years
}

// Before reports whether day a falls on an earlier calendar day than b.
func Before(a, b time.Time) bool {
	return Midnight(a).Before(Midnight(b.In(a.Location())))
}
