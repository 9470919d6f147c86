package repository

import (
	"context"
	"sort"

	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/calendar"
	"github.com/seguraabc/asistencia25/internal/dates"
	"github.com/seguraabc/asistencia25/internal/model"
)

// UpdateAttendance records status for one student on one class date. The
// date only has to be well formed, not one of the course dates.
func (r *CourseRepository) UpdateAttendance(ctx context.Context, courseID, studentID, date string, status model.AttendanceStatus) error {
	status, err := model.ParseAttendanceStatus(string(status))
	if err != nil {
		return err
	}
	if !dates.Valid(date) {
		return errors.Annotatef(ErrInvalidDate, "%q", date)
	}
	return r.mutate(ctx, "attendance", courseID, func(course *model.Course) error {
		student, err := findStudent(course, studentID)
		if err != nil {
			return err
		}
		student.Attendances[date] = status
		return nil
	})
}

// AddDate inserts a class date, keeps the list sorted and gives every
// student an unset cell for it.
func (r *CourseRepository) AddDate(ctx context.Context, courseID, date string) error {
	if !dates.Valid(date) {
		return errors.Annotatef(ErrInvalidDate, "%q", date)
	}
	return r.mutate(ctx, "add-date", courseID, func(course *model.Course) error {
		if course.HasDate(date) {
			return errors.Annotatef(ErrDateExists, "%s", date)
		}
		course.Dates = append(course.Dates, date)
		sort.Strings(course.Dates)
		for i := range course.Students {
			course.Students[i].Attendances[date] = model.StatusUnset
		}
		return nil
	})
}

// AddDates merges dates into the course and returns how many were new.
// Existing cells are kept; new dates get unset cells.
func (r *CourseRepository) AddDates(ctx context.Context, courseID string, newDates []string) (int, error) {
	for _, date := range newDates {
		if !dates.Valid(date) {
			return 0, errors.Annotatef(ErrInvalidDate, "%q", date)
		}
	}
	var added int
	err := r.mutate(ctx, "add-dates", courseID, func(course *model.Course) error {
		merged := calendar.Merge(course.Dates, newDates)
		added = len(merged) - len(course.Dates)
		course.Dates = merged
		for i := range course.Students {
			attendances := course.Students[i].Attendances
			for _, date := range merged {
				if _, ok := attendances[date]; !ok {
					attendances[date] = model.StatusUnset
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// CancelClass marks every student as cancelled on date. Repeating it leaves
// the course unchanged.
func (r *CourseRepository) CancelClass(ctx context.Context, courseID, date string) error {
	return r.mutate(ctx, "cancel", courseID, func(course *model.Course) error {
		if !course.HasDate(date) {
			return errors.Annotatef(ErrNotFound, "date %s", date)
		}
		for i := range course.Students {
			course.Students[i].Attendances[date] = model.StatusCancelled
		}
		return nil
	})
}

// RemoveDate drops a class date and every attendance cell recorded for it.
func (r *CourseRepository) RemoveDate(ctx context.Context, courseID, date string) error {
	return r.mutate(ctx, "remove-date", courseID, func(course *model.Course) error {
		if !course.HasDate(date) {
			return errors.Annotatef(ErrNotFound, "date %s", date)
		}
		kept := course.Dates[:0]
		for _, d := range course.Dates {
			if d != date {
				kept = append(kept, d)
			}
		}
		course.Dates = kept
		for i := range course.Students {
			delete(course.Students[i].Attendances, date)
		}
		return nil
	})
}
