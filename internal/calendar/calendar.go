package calendar

import (
	"sort"
	"time"

	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/dates"
)

const (
	ErrInvalidRange   = errors.ConstError("start date is after end date")
	ErrEmptySelection = errors.ConstError("no weekday selected")
	ErrNoMatchingDays = errors.ConstError("no selected weekday falls inside the range")
)

// Generate lists every day from start through end inclusive whose weekday is
// in weekdays, formatted as YYYY-MM-DD. Both bounds are compared as calendar
// days in start's location.
func Generate(start, end time.Time, weekdays []time.Weekday) ([]string, error) {
	if len(weekdays) == 0 {
		return nil, ErrEmptySelection
	}
	current := dates.Normalize(start)
	last := dates.Normalize(end.In(start.Location()))
	if current.After(last) {
		return nil, errors.Annotatef(ErrInvalidRange, "%s > %s", dates.Format(current), dates.Format(last))
	}

	selected := make(map[time.Weekday]bool, len(weekdays))
	for _, day := range weekdays {
		selected[day] = true
	}

	var out []string
	for !current.After(last) {
		if selected[current.Weekday()] {
			out = append(out, dates.Format(current))
		}
		current = dates.Normalize(current.AddDate(0, 0, 1))
	}
	if len(out) == 0 {
		return nil, ErrNoMatchingDays
	}
	return out, nil
}

// Merge returns the sorted union of existing and generated without
// duplicates.
func Merge(existing, generated []string) []string {
	seen := make(map[string]bool, len(existing)+len(generated))
	out := make([]string, 0, len(existing)+len(generated))
	for _, group := range [][]string{existing, generated} {
		for _, d := range group {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// ParseWeekdays maps 0 (Sunday) through 6 (Saturday) to time.Weekday values.
func ParseWeekdays(values []int) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 6 {
			return nil, errors.NotValidf("weekday %d", v)
		}
		out = append(out, time.Weekday(v))
	}
	return out, nil
}
