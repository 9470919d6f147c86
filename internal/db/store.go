package db

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/model"
)

// ErrNoRows is returned by GetCourse when no row matches (id, owner). It
// satisfies errors.Is(err, errors.NotFound).
const ErrNoRows = errors.NotFound

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	students   JSONB NOT NULL DEFAULT '[]'::jsonb,
	dates      JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id, user_id)
)`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the hosted course table. Every row is one course document
// addressed by (id, user_id).
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return errors.Annotate(err, "creating courses table")
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Trace(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return errors.Trace(tx.Commit(ctx))
}

func (s *Store) ListCourseSummaries(ctx context.Context, ownerID string) ([]model.CourseSummary, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name
		FROM courses
		WHERE user_id = $1
		ORDER BY name, id
	`, ownerID)
	if err != nil {
		return nil, errors.Annotate(err, "listing courses")
	}
	defer rows.Close()

	var out []model.CourseSummary
	for rows.Next() {
		var summary model.CourseSummary
		if err := rows.Scan(&summary.ID, &summary.Name); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, summary)
	}
	return out, errors.Trace(rows.Err())
}

func (s *Store) HasCourses(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE user_id = $1)`, ownerID).Scan(&exists)
	return exists, errors.Trace(err)
}

func (s *Store) GetCourse(ctx context.Context, courseID, ownerID string) (model.Course, error) {
	var (
		course   model.Course
		students []byte
		dates    []byte
	)
	row := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, name, students, dates
		FROM courses
		WHERE id = $1 AND user_id = $2
	`, courseID, ownerID)
	if err := row.Scan(&course.ID, &course.OwnerID, &course.Name, &students, &dates); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Course{}, errors.Annotatef(ErrNoRows, "course %s", courseID)
		}
		return model.Course{}, errors.Trace(err)
	}
	if err := json.Unmarshal(students, &course.Students); err != nil {
		return model.Course{}, errors.Annotatef(err, "decoding students of %s", courseID)
	}
	if err := json.Unmarshal(dates, &course.Dates); err != nil {
		return model.Course{}, errors.Annotatef(err, "decoding dates of %s", courseID)
	}
	if course.Students == nil {
		course.Students = []model.Student{}
	}
	if course.Dates == nil {
		course.Dates = []string{}
	}
	return course, nil
}

func (s *Store) InsertCourse(ctx context.Context, course model.Course) error {
	return insertCourse(ctx, s.Pool, course)
}

// InsertCourses writes all courses in one transaction.
func (s *Store) InsertCourses(ctx context.Context, courses []model.Course) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, course := range courses {
			if err := insertCourse(ctx, tx, course); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertCourse(ctx context.Context, q querier, course model.Course) error {
	students, dates, err := encodeDocument(course)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO courses (id, user_id, name, students, dates, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, now())
	`, course.ID, course.OwnerID, course.Name, students, dates)
	return errors.Annotatef(err, "inserting course %s", course.ID)
}

// UpdateCourse overwrites the whole document. A missing row is not an
// error, matching the hosted table's filter-based update.
func (s *Store) UpdateCourse(ctx context.Context, course model.Course) error {
	students, dates, err := encodeDocument(course)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE courses
		SET name = $3, students = $4::jsonb, dates = $5::jsonb, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, course.ID, course.OwnerID, course.Name, students, dates)
	return errors.Annotatef(err, "updating course %s", course.ID)
}

func (s *Store) DeleteCourse(ctx context.Context, courseID, ownerID string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM courses WHERE id = $1 AND user_id = $2`, courseID, ownerID)
	return errors.Annotatef(err, "deleting course %s", courseID)
}

func encodeDocument(course model.Course) (string, string, error) {
	students := course.Students
	if students == nil {
		students = []model.Student{}
	}
	dates := course.Dates
	if dates == nil {
		dates = []string{}
	}
	studentsJSON, err := json.Marshal(students)
	if err != nil {
		return "", "", errors.Trace(err)
	}
	datesJSON, err := json.Marshal(dates)
	if err != nil {
		return "", "", errors.Trace(err)
	}
	return string(studentsJSON), string(datesJSON), nil
}
