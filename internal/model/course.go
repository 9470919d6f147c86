package model

import (
	"encoding/json"

	"github.com/juju/errors"
)

type AttendanceStatus string

const (
	StatusPresent   AttendanceStatus = "P"
	StatusAbsent    AttendanceStatus = "A"
	StatusJustified AttendanceStatus = "J"
	StatusCancelled AttendanceStatus = "X"
	StatusUnset     AttendanceStatus = ""
)

const ErrInvalidStatus = errors.ConstError("invalid attendance status")

// ParseAttendanceStatus accepts the single-character codes stored in course
// documents.
func ParseAttendanceStatus(value string) (AttendanceStatus, error) {
	switch status := AttendanceStatus(value); status {
	case StatusPresent, StatusAbsent, StatusJustified, StatusCancelled, StatusUnset:
		return status, nil
	default:
		return "", errors.Annotatef(ErrInvalidStatus, "%q", value)
	}
}

type Grade struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Student keeps Grades nil when the student never had a grade list, and
// non-nil (possibly empty) once one was recorded. Both states survive JSON.
type Student struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	Attendances map[string]AttendanceStatus `json:"attendances"`
	Grades      []Grade                     `json:"-"`
}

type studentJSON struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	Attendances map[string]AttendanceStatus `json:"attendances"`
	Grades      *[]Grade                    `json:"grades,omitempty"`
}

func (s Student) MarshalJSON() ([]byte, error) {
	out := studentJSON{ID: s.ID, Name: s.Name, Attendances: s.Attendances}
	if out.Attendances == nil {
		out.Attendances = map[string]AttendanceStatus{}
	}
	if s.Grades != nil {
		grades := s.Grades
		out.Grades = &grades
	}
	return json.Marshal(out)
}

func (s *Student) UnmarshalJSON(data []byte) error {
	var in studentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.ID = in.ID
	s.Name = in.Name
	s.Attendances = in.Attendances
	if s.Attendances == nil {
		s.Attendances = map[string]AttendanceStatus{}
	}
	s.Grades = nil
	if in.Grades != nil {
		s.Grades = *in.Grades
		if s.Grades == nil {
			s.Grades = []Grade{}
		}
	}
	return nil
}

// HasGrades reports whether a grade list was ever recorded for the student.
func (s Student) HasGrades() bool {
	return s.Grades != nil
}

func (s Student) Clone() Student {
	out := Student{ID: s.ID, Name: s.Name}
	out.Attendances = make(map[string]AttendanceStatus, len(s.Attendances))
	for date, status := range s.Attendances {
		out.Attendances[date] = status
	}
	if s.Grades != nil {
		out.Grades = append([]Grade{}, s.Grades...)
	}
	return out
}

type Course struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	OwnerID  string    `json:"user_id,omitempty"`
	Students []Student `json:"students"`
	Dates    []string  `json:"dates"`
}

type CourseSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c Course) Summary() CourseSummary {
	return CourseSummary{ID: c.ID, Name: c.Name}
}

// Clone returns a deep copy so callers can mutate it without touching the
// original document.
func (c Course) Clone() Course {
	out := Course{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID}
	out.Students = make([]Student, 0, len(c.Students))
	for _, student := range c.Students {
		out.Students = append(out.Students, student.Clone())
	}
	out.Dates = append(make([]string, 0, len(c.Dates)), c.Dates...)
	return out
}

func (c *Course) StudentIndex(studentID string) int {
	for i, student := range c.Students {
		if student.ID == studentID {
			return i
		}
	}
	return -1
}

func (c *Course) HasDate(date string) bool {
	for _, d := range c.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// SessionUser is the last identity seen from the identity provider.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
