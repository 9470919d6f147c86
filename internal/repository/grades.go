package repository

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/model"
)

// AddGrade appends grade to the student's list. An empty grade.ID is
// replaced with a fresh identifier.
func (r *CourseRepository) AddGrade(ctx context.Context, courseID, studentID string, grade model.Grade) (model.Grade, error) {
	grade.Name = strings.TrimSpace(grade.Name)
	if grade.Name == "" {
		return model.Grade{}, errors.Trace(ErrInvalidName)
	}
	if grade.ID == "" {
		grade.ID = r.newID()
	}
	err := r.mutate(ctx, "add-grade", courseID, func(course *model.Course) error {
		student, err := findStudent(course, studentID)
		if err != nil {
			return err
		}
		student.Grades = append(student.Grades, grade)
		return nil
	})
	if err != nil {
		return model.Grade{}, err
	}
	return grade, nil
}

// AddGradeToAll gives every student in the course the same grade. The grade
// identifiers share a batch prefix followed by the student identifier.
func (r *CourseRepository) AddGradeToAll(ctx context.Context, courseID, name string, value float64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.Trace(ErrInvalidName)
	}
	batch := r.newID()
	return r.mutate(ctx, "add-grade-all", courseID, func(course *model.Course) error {
		for i := range course.Students {
			student := &course.Students[i]
			student.Grades = append(student.Grades, model.Grade{
				ID:    batch + student.ID,
				Name:  name,
				Value: value,
			})
		}
		return nil
	})
}

// UpdateGrade replaces the grade with the same identifier.
func (r *CourseRepository) UpdateGrade(ctx context.Context, courseID, studentID string, grade model.Grade) error {
	grade.Name = strings.TrimSpace(grade.Name)
	if grade.Name == "" {
		return errors.Trace(ErrInvalidName)
	}
	return r.mutate(ctx, "update-grade", courseID, func(course *model.Course) error {
		student, err := findStudent(course, studentID)
		if err != nil {
			return err
		}
		for i := range student.Grades {
			if student.Grades[i].ID == grade.ID {
				student.Grades[i] = grade
				return nil
			}
		}
		return errors.Annotatef(ErrNotFound, "grade %s", grade.ID)
	})
}

// RemoveGrade deletes one grade. The student keeps an empty, recorded grade
// list afterwards.
func (r *CourseRepository) RemoveGrade(ctx context.Context, courseID, studentID, gradeID string) error {
	return r.mutate(ctx, "remove-grade", courseID, func(course *model.Course) error {
		student, err := findStudent(course, studentID)
		if err != nil {
			return err
		}
		kept := make([]model.Grade, 0, len(student.Grades))
		for _, grade := range student.Grades {
			if grade.ID != gradeID {
				kept = append(kept, grade)
			}
		}
		if len(kept) == len(student.Grades) {
			return errors.Annotatef(ErrNotFound, "grade %s", gradeID)
		}
		student.Grades = kept
		return nil
	})
}
