// Package repository is the single writer of persisted course state. Every
// call goes to the remote store first and keeps a per-owner snapshot in the
// local cache: successful remote writes are mirrored into the snapshot, and
// failed remote calls are answered from it instead.
//
// Mutations are read-modify-write cycles over the whole course document with
// no version check, so concurrent writers race and the last one wins.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/seguraabc/asistencia25/internal/auth"
	"github.com/seguraabc/asistencia25/internal/calendar"
	"github.com/seguraabc/asistencia25/internal/dates"
	"github.com/seguraabc/asistencia25/internal/metrics"
	"github.com/seguraabc/asistencia25/internal/model"
)

var logger = loggo.GetLogger("rollbook.repository")

const (
	ErrNotFound      = errors.ConstError("not found")
	ErrDateExists    = errors.ConstError("date already in course")
	ErrInvalidName   = errors.ConstError("name required")
	ErrPersistFailed = errors.ConstError("course could not be persisted")

	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrInvalidDate     = dates.ErrInvalidDate
	ErrInvalidStatus   = model.ErrInvalidStatus
)

const defaultCourseName = "New course"

// RemoteStore is the hosted course table scoped by owner.
type RemoteStore interface {
	ListCourseSummaries(ctx context.Context, ownerID string) ([]model.CourseSummary, error)
	GetCourse(ctx context.Context, courseID, ownerID string) (model.Course, error)
	InsertCourse(ctx context.Context, course model.Course) error
	UpdateCourse(ctx context.Context, course model.Course) error
	DeleteCourse(ctx context.Context, courseID, ownerID string) error
}

// LocalCache holds one snapshot of all courses per owner.
type LocalCache interface {
	LoadCourses(ctx context.Context, ownerID string) ([]model.Course, error)
	SaveCourses(ctx context.Context, ownerID string, courses []model.Course) error
	TempOwner(ctx context.Context) (string, error)
	SetTempOwner(ctx context.Context, ownerID string) error
}

type CourseRepository struct {
	remote RemoteStore
	cache  LocalCache
	owners auth.Resolver
	newID  func() string
	now    func() time.Time
}

func NewCourseRepository(remote RemoteStore, cache LocalCache, owners auth.Resolver) *CourseRepository {
	return &CourseRepository{
		remote: remote,
		cache:  cache,
		owners: owners,
		newID:  newID,
		now:    time.Now,
	}
}

// newID returns a time-ordered identifier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// cacheTransform rewrites an owner's snapshot. Returning false leaves the
// snapshot untouched.
type cacheTransform func(courses []model.Course) ([]model.Course, bool)

func appendCourse(course model.Course) cacheTransform {
	return func(courses []model.Course) ([]model.Course, bool) {
		return append(courses, course.Clone()), true
	}
}

func upsertCourse(course model.Course) cacheTransform {
	return func(courses []model.Course) ([]model.Course, bool) {
		for i := range courses {
			if courses[i].ID == course.ID {
				courses[i] = course.Clone()
				return courses, true
			}
		}
		return append(courses, course.Clone()), true
	}
}

func removeCourse(courseID string) cacheTransform {
	return func(courses []model.Course) ([]model.Course, bool) {
		if courses == nil {
			return nil, false
		}
		kept := courses[:0]
		for _, course := range courses {
			if course.ID != courseID {
				kept = append(kept, course)
			}
		}
		return kept, true
	}
}

func (r *CourseRepository) applyCache(ctx context.Context, op, ownerID string, fn cacheTransform) bool {
	courses, err := r.cache.LoadCourses(ctx, ownerID)
	if err != nil {
		logger.Errorf("%s: reading local cache: %v", op, err)
		metrics.CacheFailures.WithLabelValues(op).Inc()
		return false
	}
	next, ok := fn(courses)
	if !ok {
		return false
	}
	if err := r.cache.SaveCourses(ctx, ownerID, next); err != nil {
		logger.Errorf("%s: writing local cache: %v", op, err)
		metrics.CacheFailures.WithLabelValues(op).Inc()
		return false
	}
	return true
}

// write runs a remote mutation. On success the mirror transform is applied
// to the cache on a best-effort basis; on failure the fallback transform is
// applied instead and decides the outcome.
func (r *CourseRepository) write(ctx context.Context, op, ownerID string, remote func(context.Context) error, mirror, fallback cacheTransform) error {
	err := remote(ctx)
	if err == nil {
		r.applyCache(ctx, op, ownerID, mirror)
		return nil
	}
	logger.Warningf("%s: remote store failed, falling back to local cache: %v", op, err)
	metrics.RemoteFallbacks.WithLabelValues(op).Inc()
	if !r.applyCache(ctx, op, ownerID, fallback) {
		return errors.Annotatef(ErrPersistFailed, "%s", op)
	}
	return nil
}

// read asks the remote store first and answers from the cached snapshot when
// the remote call fails or accept rejects the result.
func read[T any](ctx context.Context, r *CourseRepository, op, ownerID string, remote func(context.Context) (T, error), accept func(T) bool, fromCache func([]model.Course) (T, bool)) (T, bool) {
	value, err := remote(ctx)
	if err == nil && accept(value) {
		return value, true
	}
	switch {
	case errors.Is(err, errors.NotFound):
		logger.Debugf("%s: not in remote store, reading local cache: %v", op, err)
	case err != nil:
		logger.Warningf("%s: remote store failed, reading local cache: %v", op, err)
		metrics.RemoteFallbacks.WithLabelValues(op).Inc()
	}
	var zero T
	courses, err := r.cache.LoadCourses(ctx, ownerID)
	if err != nil {
		logger.Errorf("%s: reading local cache: %v", op, err)
		metrics.CacheFailures.WithLabelValues(op).Inc()
		return zero, false
	}
	return fromCache(courses)
}

func (r *CourseRepository) resolveOwner(ctx context.Context) (string, error) {
	owner, err := r.owners.ResolveOwner(ctx)
	if err != nil {
		return "", errors.Trace(ErrUnauthenticated)
	}
	return owner, nil
}

func summaries(courses []model.Course) ([]model.CourseSummary, bool) {
	out := make([]model.CourseSummary, 0, len(courses))
	for _, course := range courses {
		out = append(out, course.Summary())
	}
	return out, len(out) > 0
}

// ListCourses never fails: it answers from the remote store, then the
// owner's snapshot, then the temporary owner's snapshot, and finally with an
// empty list.
func (r *CourseRepository) ListCourses(ctx context.Context) []model.CourseSummary {
	owner, err := r.resolveOwner(ctx)
	if err != nil {
		logger.Debugf("listing courses without an owner")
		return []model.CourseSummary{}
	}
	list, ok := read(ctx, r, "list", owner,
		func(ctx context.Context) ([]model.CourseSummary, error) {
			return r.remote.ListCourseSummaries(ctx, owner)
		},
		func(list []model.CourseSummary) bool { return len(list) > 0 },
		summaries,
	)
	if ok {
		return list
	}
	temp, err := r.cache.TempOwner(ctx)
	if err != nil || temp == "" || temp == owner {
		return []model.CourseSummary{}
	}
	courses, err := r.cache.LoadCourses(ctx, temp)
	if err != nil {
		logger.Errorf("list: reading temporary snapshot: %v", err)
		return []model.CourseSummary{}
	}
	list, _ = summaries(courses)
	return list
}

func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (model.Course, error) {
	owner, err := r.resolveOwner(ctx)
	if err != nil {
		return model.Course{}, err
	}
	return r.getCourse(ctx, owner, courseID)
}

func (r *CourseRepository) getCourse(ctx context.Context, owner, courseID string) (model.Course, error) {
	course, ok := read(ctx, r, "get", owner,
		func(ctx context.Context) (model.Course, error) {
			return r.remote.GetCourse(ctx, courseID, owner)
		},
		func(model.Course) bool { return true },
		func(courses []model.Course) (model.Course, bool) {
			for _, course := range courses {
				if course.ID == courseID {
					return course, true
				}
			}
			return model.Course{}, false
		},
	)
	if !ok {
		return model.Course{}, errors.Annotatef(ErrNotFound, "course %s", courseID)
	}
	return course, nil
}

// CreateCourse stores draft under a new identifier. Without a resolvable
// owner a temporary one is generated, remembered and the course is kept in
// the local cache only.
func (r *CourseRepository) CreateCourse(ctx context.Context, draft model.Course) (model.Course, error) {
	course := normalizeDraft(draft.Clone())
	course.ID = r.newID()

	owner, err := r.resolveOwner(ctx)
	if err != nil {
		owner = fmt.Sprintf("temp-%d", r.now().UnixMilli())
		if err := r.cache.SetTempOwner(ctx, owner); err != nil {
			logger.Errorf("create: storing temporary owner: %v", err)
			return model.Course{}, errors.Annotate(ErrPersistFailed, "create")
		}
		course.OwnerID = owner
		if !r.applyCache(ctx, "create", owner, appendCourse(course)) {
			return model.Course{}, errors.Annotate(ErrPersistFailed, "create")
		}
		logger.Infof("course %s stored locally for temporary owner %s", course.ID, owner)
		return course, nil
	}

	course.OwnerID = owner
	err = r.write(ctx, "create", owner,
		func(ctx context.Context) error { return r.remote.InsertCourse(ctx, course) },
		appendCourse(course),
		appendCourse(course),
	)
	if err != nil {
		return model.Course{}, err
	}
	return course, nil
}

func normalizeDraft(course model.Course) model.Course {
	course.Name = strings.TrimSpace(course.Name)
	if course.Name == "" {
		course.Name = defaultCourseName
	}
	if course.Students == nil {
		course.Students = []model.Student{}
	}
	if course.Dates == nil {
		course.Dates = []string{}
	}
	for i := range course.Students {
		if course.Students[i].Attendances == nil {
			course.Students[i].Attendances = map[string]model.AttendanceStatus{}
		}
	}
	return course
}

// UpdateCourse overwrites the stored document with course. Dates must be
// well formed; they are stored sorted and without duplicates.
func (r *CourseRepository) UpdateCourse(ctx context.Context, course model.Course) error {
	owner, err := r.resolveOwner(ctx)
	if err != nil {
		return err
	}
	for _, date := range course.Dates {
		if !dates.Valid(date) {
			return errors.Annotatef(ErrInvalidDate, "%q", date)
		}
	}
	course = normalizeDraft(course.Clone())
	course.Dates = calendar.Merge(nil, course.Dates)
	course.OwnerID = owner
	return r.save(ctx, "update", owner, course)
}

func (r *CourseRepository) save(ctx context.Context, op, owner string, course model.Course) error {
	return r.write(ctx, op, owner,
		func(ctx context.Context) error { return r.remote.UpdateCourse(ctx, course) },
		upsertCourse(course),
		upsertCourse(course),
	)
}

func (r *CourseRepository) DeleteCourse(ctx context.Context, courseID string) error {
	owner, err := r.resolveOwner(ctx)
	if err != nil {
		return err
	}
	return r.write(ctx, "delete", owner,
		func(ctx context.Context) error { return r.remote.DeleteCourse(ctx, courseID, owner) },
		removeCourse(courseID),
		removeCourse(courseID),
	)
}

// mutate fetches the course, applies fn to it and persists the result
// through the update path.
func (r *CourseRepository) mutate(ctx context.Context, op, courseID string, fn func(*model.Course) error) error {
	owner, err := r.resolveOwner(ctx)
	if err != nil {
		return err
	}
	course, err := r.getCourse(ctx, owner, courseID)
	if err != nil {
		return err
	}
	if err := fn(&course); err != nil {
		return err
	}
	course.OwnerID = owner
	return r.save(ctx, op, owner, course)
}

func findStudent(course *model.Course, studentID string) (*model.Student, error) {
	i := course.StudentIndex(studentID)
	if i < 0 {
		return nil, errors.Annotatef(ErrNotFound, "student %s", studentID)
	}
	return &course.Students[i], nil
}
