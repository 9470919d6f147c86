package repository

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/model"
)

// AddStudent appends one student with an unset cell for every class date.
func (r *CourseRepository) AddStudent(ctx context.Context, courseID, name string) (model.Student, error) {
	added, err := r.AddStudents(ctx, courseID, []string{name})
	if err != nil {
		return model.Student{}, err
	}
	return added[0], nil
}

// AddStudents appends every non-blank name as a new student.
func (r *CourseRepository) AddStudents(ctx context.Context, courseID string, names []string) ([]model.Student, error) {
	var trimmed []string
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			trimmed = append(trimmed, name)
		}
	}
	if len(trimmed) == 0 {
		return nil, errors.Trace(ErrInvalidName)
	}

	var added []model.Student
	err := r.mutate(ctx, "add-students", courseID, func(course *model.Course) error {
		for _, name := range trimmed {
			student := model.Student{
				ID:          r.newID(),
				Name:        name,
				Attendances: make(map[string]model.AttendanceStatus, len(course.Dates)),
			}
			for _, date := range course.Dates {
				student.Attendances[date] = model.StatusUnset
			}
			course.Students = append(course.Students, student)
			added = append(added, student.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (r *CourseRepository) RemoveStudent(ctx context.Context, courseID, studentID string) error {
	return r.mutate(ctx, "remove-student", courseID, func(course *model.Course) error {
		i := course.StudentIndex(studentID)
		if i < 0 {
			return errors.Annotatef(ErrNotFound, "student %s", studentID)
		}
		course.Students = append(course.Students[:i], course.Students[i+1:]...)
		return nil
	})
}
