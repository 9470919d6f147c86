package dates

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestNormalizePinsNoon(t *testing.T) {
	c := qt.New(t)
	loc := time.FixedZone("UTC-5", -5*3600)
	in := time.Date(2023, 5, 1, 23, 59, 59, 999, loc)
	out := Normalize(in)
	c.Assert(out, qt.Equals, time.Date(2023, 5, 1, 12, 0, 0, 0, loc))
}

func TestIsDateInCourseIgnoresTimeOfDay(t *testing.T) {
	c := qt.New(t)
	courseDates := []string{"2023-05-02", "not-a-date", "2023-05-04"}

	c.Assert(IsDateInCourse(time.Date(2023, 5, 4, 0, 0, 1, 0, time.UTC), courseDates), qt.IsTrue)
	c.Assert(IsDateInCourse(time.Date(2023, 5, 4, 23, 30, 0, 0, time.UTC), courseDates), qt.IsTrue)
	c.Assert(IsDateInCourse(time.Date(2023, 5, 3, 12, 0, 0, 0, time.UTC), courseDates), qt.IsFalse)
	c.Assert(IsDateInCourse(time.Date(2023, 5, 3, 12, 0, 0, 0, time.UTC), nil), qt.IsFalse)
}

func TestParseAndDisplay(t *testing.T) {
	c := qt.New(t)
	d, err := Parse("2023-06-01", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(d.Hour(), qt.Equals, 12)
	c.Assert(Format(d), qt.Equals, "2023-06-01")
	c.Assert(Display("2023-06-01"), qt.Equals, "01/06/2023")
	c.Assert(Display("junk"), qt.Equals, "junk")

	_, err = Parse("2023-13-01", nil)
	c.Assert(err, qt.ErrorIs, ErrInvalidDate)
	c.Assert(Valid("2023-02-29"), qt.IsFalse)
	c.Assert(Valid("2024-02-29"), qt.IsTrue)
}
