// Package stats computes the per-student aggregates shown in attendance
// sheets and reports.
package stats

import (
	"math"

	"github.com/seguraabc/asistencia25/internal/model"
)

// AttendancePercentage is the share of Present marks among the recorded,
// non-cancelled marks on dates, rounded half up to a whole percent. Dates
// without a recorded mark do not count.
func AttendancePercentage(student model.Student, dates []string) int {
	var valid, present int
	for _, date := range dates {
		status, ok := student.Attendances[date]
		if !ok || status == model.StatusUnset || status == model.StatusCancelled {
			continue
		}
		valid++
		if status == model.StatusPresent {
			present++
		}
	}
	if valid == 0 {
		return 0
	}
	return (200*present + valid) / (2 * valid)
}

// AverageGrade is the mean grade value rounded half up to one decimal.
func AverageGrade(student model.Student) float64 {
	if len(student.Grades) == 0 {
		return 0
	}
	var sum float64
	for _, grade := range student.Grades {
		sum += grade.Value
	}
	return math.Floor(sum/float64(len(student.Grades))*10+0.5) / 10
}

type StudentSummary struct {
	StudentID  string  `json:"studentId"`
	Name       string  `json:"name"`
	Attendance int     `json:"attendance"`
	Average    float64 `json:"average"`
}

func Summarize(course model.Course) []StudentSummary {
	out := make([]StudentSummary, 0, len(course.Students))
	for _, student := range course.Students {
		out = append(out, StudentSummary{
			StudentID:  student.ID,
			Name:       student.Name,
			Attendance: AttendancePercentage(student, course.Dates),
			Average:    AverageGrade(student),
		})
	}
	return out
}
