// Package dates holds the calendar helpers shared by the course repository,
// the calendar generator and the report writers. Class dates are stored as
// YYYY-MM-DD strings, so lexical order equals chronological order.
package dates

import (
	"time"

	"github.com/juju/errors"
)

const (
	Layout        = "2006-01-02"
	DisplayLayout = "02/01/2006"
)

const ErrInvalidDate = errors.ConstError("invalid date")

// Parse reads a class date string as a calendar day pinned to noon in loc.
func Parse(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(Layout, value, loc)
	if err != nil {
		return time.Time{}, errors.Annotatef(ErrInvalidDate, "%q", value)
	}
	return Normalize(t), nil
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// Display renders a stored date as dd/mm/yyyy. Unparseable values are
// returned unchanged.
func Display(value string) string {
	t, err := Parse(value, time.UTC)
	if err != nil {
		return value
	}
	return t.Format(DisplayLayout)
}

// Normalize pins t to 12:00 on the same calendar day in t's location, which
// keeps day arithmetic clear of DST and timezone boundaries.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, t.Location())
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsDateInCourse reports whether date falls on one of the course dates,
// ignoring the time of day. Entries that do not parse are skipped.
func IsDateInCourse(date time.Time, courseDates []string) bool {
	for _, value := range courseDates {
		d, err := Parse(value, date.Location())
		if err != nil {
			continue
		}
		if SameDay(d, date) {
			return true
		}
	}
	return false
}

// Valid reports whether value is a well formed YYYY-MM-DD date.
func Valid(value string) bool {
	_, err := Parse(value, time.UTC)
	return err == nil
}
