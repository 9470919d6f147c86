package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seguraabc/asistencia25/internal/auth"
	"github.com/seguraabc/asistencia25/internal/metrics"
	"github.com/seguraabc/asistencia25/internal/model"
	"github.com/seguraabc/asistencia25/internal/repository/repositorytest"
	"github.com/seguraabc/asistencia25/internal/stats"
)

var errDown = errors.New("connection refused")

type fixture struct {
	remote *repositorytest.RemoteStore
	cache  *repositorytest.Cache
	repo   *CourseRepository
}

func newFixture(owner string) *fixture {
	remote := repositorytest.NewRemoteStore()
	cache := repositorytest.NewCache()
	resolver := auth.ResolverFunc(func(context.Context) (string, error) {
		if owner == "" {
			return "", auth.ErrUnauthenticated
		}
		return owner, nil
	})
	f := &fixture{remote: remote, cache: cache, repo: NewCourseRepository(remote, cache, resolver)}
	f.useSequentialIDs()
	return f
}

func (f *fixture) useSequentialIDs() {
	n := 0
	f.repo.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func (f *fixture) createCourse(c *qt.C, name string) model.Course {
	course, err := f.repo.CreateCourse(context.Background(), model.Course{Name: name})
	c.Assert(err, qt.IsNil)
	return course
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()

	created, err := f.repo.CreateCourse(ctx, model.Course{Name: "  Matemáticas  "})
	c.Assert(err, qt.IsNil)
	c.Assert(created, qt.DeepEquals, model.Course{
		ID:       "id-1",
		Name:     "Matemáticas",
		OwnerID:  "owner-1",
		Students: []model.Student{},
		Dates:    []string{},
	})

	got, err := f.repo.GetCourse(ctx, created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, created)
	c.Assert(f.cache.Courses("owner-1"), qt.DeepEquals, []model.Course{created})
}

func TestCreateCourseDefaultsEmptyName(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	course := f.createCourse(c, "")
	c.Assert(course.Name, qt.Equals, defaultCourseName)
}

func TestAttendanceEndToEnd(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")

	ana, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)
	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-06-01"), qt.IsNil)
	c.Assert(f.repo.UpdateAttendance(ctx, course.ID, ana.ID, "2023-06-01", model.StatusPresent), qt.IsNil)

	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students, qt.HasLen, 1)
	c.Assert(stats.AttendancePercentage(got.Students[0], []string{"2023-06-01"}), qt.Equals, 100)
}

func TestUpdateAttendanceErrors(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")
	ana, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)

	err = f.repo.UpdateAttendance(ctx, course.ID, ana.ID, "2023-06-01", "Q")
	c.Assert(err, qt.ErrorIs, ErrInvalidStatus)
	err = f.repo.UpdateAttendance(ctx, course.ID, "missing", "2023-06-01", model.StatusAbsent)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	err = f.repo.UpdateAttendance(ctx, "missing", ana.ID, "2023-06-01", model.StatusAbsent)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	err = f.repo.UpdateAttendance(ctx, course.ID, ana.ID, "garbage", model.StatusPresent)
	c.Assert(err, qt.ErrorIs, ErrInvalidDate)

	// A well formed date outside the course is still recorded.
	c.Assert(f.repo.UpdateAttendance(ctx, course.ID, ana.ID, "2023-06-02", model.StatusPresent), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students[0].Attendances, qt.DeepEquals, map[string]model.AttendanceStatus{"2023-06-02": model.StatusPresent})
}

func TestUpdateCourseSortsAndDeduplicatesDates(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")

	course.Dates = []string{"2023-06-02", "2023-06-01", "2023-06-01"}
	c.Assert(f.repo.UpdateCourse(ctx, course), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Dates, qt.DeepEquals, []string{"2023-06-01", "2023-06-02"})

	course.Dates = []string{"2023-06-03", "nope"}
	err = f.repo.UpdateCourse(ctx, course)
	c.Assert(err, qt.ErrorIs, ErrInvalidDate)
	got, err = f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Dates, qt.DeepEquals, []string{"2023-06-01", "2023-06-02"})
	c.Assert(f.repo.CancelClass(ctx, course.ID, "nope"), qt.ErrorIs, ErrNotFound)
}

func TestMissingCourseIsNotARemoteFallback(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	before := testutil.ToFloat64(metrics.RemoteFallbacks.WithLabelValues("get"))

	_, err := f.repo.GetCourse(context.Background(), "missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(testutil.ToFloat64(metrics.RemoteFallbacks.WithLabelValues("get")), qt.Equals, before)
}

func TestAddDateKeepsDatesSortedAndUnique(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Historia")
	ana, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)

	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-06-05"), qt.IsNil)
	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-06-01"), qt.IsNil)
	err = f.repo.AddDate(ctx, course.ID, "2023-06-05")
	c.Assert(err, qt.ErrorIs, ErrDateExists)
	err = f.repo.AddDate(ctx, course.ID, "2023-13-01")
	c.Assert(err, qt.ErrorIs, ErrInvalidDate)

	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Dates, qt.DeepEquals, []string{"2023-06-01", "2023-06-05"})
	c.Assert(got.Students[0].ID, qt.Equals, ana.ID)
	c.Assert(got.Students[0].Attendances, qt.DeepEquals, map[string]model.AttendanceStatus{
		"2023-06-01": model.StatusUnset,
		"2023-06-05": model.StatusUnset,
	})
}

func TestAddDatesMergesAndKeepsMarks(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Historia")
	ana, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)
	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-05-08"), qt.IsNil)
	c.Assert(f.repo.UpdateAttendance(ctx, course.ID, ana.ID, "2023-05-08", model.StatusAbsent), qt.IsNil)

	added, err := f.repo.AddDates(ctx, course.ID, []string{"2023-05-15", "2023-05-08", "2023-05-01"})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.Equals, 2)

	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Dates, qt.DeepEquals, []string{"2023-05-01", "2023-05-08", "2023-05-15"})
	c.Assert(got.Students[0].Attendances, qt.DeepEquals, map[string]model.AttendanceStatus{
		"2023-05-01": model.StatusUnset,
		"2023-05-08": model.StatusAbsent,
		"2023-05-15": model.StatusUnset,
	})

	_, err = f.repo.AddDates(ctx, course.ID, []string{"not-a-date"})
	c.Assert(err, qt.ErrorIs, ErrInvalidDate)
}

func TestCancelClassIsIdempotent(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")
	_, err := f.repo.AddStudents(ctx, course.ID, []string{"Ana", "Luis"})
	c.Assert(err, qt.IsNil)
	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-06-01"), qt.IsNil)

	c.Assert(f.repo.CancelClass(ctx, course.ID, "2023-06-01"), qt.IsNil)
	once, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(f.repo.CancelClass(ctx, course.ID, "2023-06-01"), qt.IsNil)
	twice, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(twice, qt.DeepEquals, once)
	for _, student := range twice.Students {
		c.Assert(student.Attendances["2023-06-01"], qt.Equals, model.StatusCancelled)
	}

	err = f.repo.CancelClass(ctx, course.ID, "2023-06-02")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestRemoveDateDropsCells(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")
	_, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)
	_, err = f.repo.AddDates(ctx, course.ID, []string{"2023-06-01", "2023-06-08"})
	c.Assert(err, qt.IsNil)

	c.Assert(f.repo.RemoveDate(ctx, course.ID, "2023-06-01"), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Dates, qt.DeepEquals, []string{"2023-06-08"})
	c.Assert(got.Students[0].Attendances, qt.DeepEquals, map[string]model.AttendanceStatus{"2023-06-08": model.StatusUnset})

	err = f.repo.RemoveDate(ctx, course.ID, "2023-06-01")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestRosterChanges(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")
	c.Assert(f.repo.AddDate(ctx, course.ID, "2023-06-01"), qt.IsNil)

	added, err := f.repo.AddStudents(ctx, course.ID, []string{" Ana ", "", "   ", "Luis"})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.HasLen, 2)
	c.Assert(added[0].Name, qt.Equals, "Ana")
	c.Assert(added[0].Attendances, qt.DeepEquals, map[string]model.AttendanceStatus{"2023-06-01": model.StatusUnset})
	c.Assert(added[0].HasGrades(), qt.IsFalse)

	_, err = f.repo.AddStudents(ctx, course.ID, []string{" "})
	c.Assert(err, qt.ErrorIs, ErrInvalidName)

	c.Assert(f.repo.RemoveStudent(ctx, course.ID, added[0].ID), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students, qt.HasLen, 1)
	c.Assert(got.Students[0].Name, qt.Equals, "Luis")

	err = f.repo.RemoveStudent(ctx, course.ID, added[0].ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestGradeLifecycle(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Matemáticas")
	ana, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)

	grade, err := f.repo.AddGrade(ctx, course.ID, ana.ID, model.Grade{Name: "Examen 1", Value: 8.5})
	c.Assert(err, qt.IsNil)
	c.Assert(grade.ID, qt.Not(qt.Equals), "")

	grade.Value = 9
	c.Assert(f.repo.UpdateGrade(ctx, course.ID, ana.ID, grade), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students[0].Grades, qt.DeepEquals, []model.Grade{grade})

	err = f.repo.UpdateGrade(ctx, course.ID, ana.ID, model.Grade{ID: "missing", Name: "Examen 1"})
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	err = f.repo.UpdateGrade(ctx, course.ID, ana.ID, model.Grade{ID: grade.ID, Name: "   ", Value: 1})
	c.Assert(err, qt.ErrorIs, ErrInvalidName)
	_, err = f.repo.AddGrade(ctx, course.ID, ana.ID, model.Grade{Name: " "})
	c.Assert(err, qt.ErrorIs, ErrInvalidName)

	c.Assert(f.repo.RemoveGrade(ctx, course.ID, ana.ID, grade.ID), qt.IsNil)
	got, err = f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students[0].HasGrades(), qt.IsTrue)
	c.Assert(got.Students[0].Grades, qt.HasLen, 0)

	err = f.repo.RemoveGrade(ctx, course.ID, ana.ID, grade.ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestAddGradeToAll(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Matemáticas")
	students, err := f.repo.AddStudents(ctx, course.ID, []string{"Ana", "Luis"})
	c.Assert(err, qt.IsNil)

	c.Assert(f.repo.AddGradeToAll(ctx, course.ID, "Proyecto", 7), qt.IsNil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	// ids 1-3 went to the course and the two students.
	for i, student := range got.Students {
		c.Assert(student.Grades, qt.DeepEquals, []model.Grade{{
			ID:    "id-4" + students[i].ID,
			Name:  "Proyecto",
			Value: 7,
		}})
	}
}

func TestRemoteFailureFallsBackToCache(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")

	fallbacks := testutil.ToFloat64(metrics.RemoteFallbacks.WithLabelValues("add-students"))
	f.remote.SetErr(errDown)
	_, err := f.repo.AddStudent(ctx, course.ID, "Ana")
	c.Assert(err, qt.IsNil)
	c.Assert(testutil.ToFloat64(metrics.RemoteFallbacks.WithLabelValues("add-students")), qt.Equals, fallbacks+1)

	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Students, qt.HasLen, 1)
	c.Assert(f.repo.ListCourses(ctx), qt.DeepEquals, []model.CourseSummary{{ID: course.ID, Name: "Física"}})

	stored, ok := f.remote.Course("owner-1", course.ID)
	c.Assert(ok, qt.IsTrue)
	c.Assert(stored.Students, qt.HasLen, 0)
}

func TestCreateWhileRemoteDownKeepsCourseLocally(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	f.remote.SetErr(errDown)

	course := f.createCourse(c, "Física")
	c.Assert(f.cache.Courses("owner-1"), qt.DeepEquals, []model.Course{course})

	f.remote.SetErr(nil)
	got, err := f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, course)
}

func TestPersistFailsWhenBothStoresFail(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	course := f.createCourse(c, "Física")

	f.remote.SetErr(errDown)
	f.cache.SetErr(errDown)
	err := f.repo.UpdateCourse(ctx, course)
	c.Assert(err, qt.ErrorIs, ErrPersistFailed)
	_, err = f.repo.CreateCourse(ctx, model.Course{Name: "Química"})
	c.Assert(err, qt.ErrorIs, ErrPersistFailed)
	err = f.repo.DeleteCourse(ctx, course.ID)
	c.Assert(err, qt.ErrorIs, ErrPersistFailed)
	_, err = f.repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(f.repo.ListCourses(ctx), qt.HasLen, 0)
}

func TestCacheFailureAfterRemoteSuccessIsIgnored(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	f.cache.SetErr(errDown)

	course := f.createCourse(c, "Física")
	_, ok := f.remote.Course("owner-1", course.ID)
	c.Assert(ok, qt.IsTrue)
}

func TestDeleteCourseRemovesEverywhere(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	keep := f.createCourse(c, "Historia")
	gone := f.createCourse(c, "Física")

	c.Assert(f.repo.DeleteCourse(ctx, gone.ID), qt.IsNil)
	_, ok := f.remote.Course("owner-1", gone.ID)
	c.Assert(ok, qt.IsFalse)
	c.Assert(f.cache.Courses("owner-1"), qt.DeepEquals, []model.Course{keep})
	_, err := f.repo.GetCourse(ctx, gone.ID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestUnauthenticatedCalls(t *testing.T) {
	c := qt.New(t)
	f := newFixture("")
	ctx := context.Background()

	c.Assert(f.repo.ListCourses(ctx), qt.DeepEquals, []model.CourseSummary{})
	_, err := f.repo.GetCourse(ctx, "any")
	c.Assert(err, qt.ErrorIs, ErrUnauthenticated)
	c.Assert(f.repo.UpdateCourse(ctx, model.Course{ID: "any"}), qt.ErrorIs, ErrUnauthenticated)
	c.Assert(f.repo.DeleteCourse(ctx, "any"), qt.ErrorIs, ErrUnauthenticated)
	c.Assert(f.repo.AddDate(ctx, "any", "2023-06-01"), qt.ErrorIs, ErrUnauthenticated)
}

func TestCreateWithoutOwnerUsesTemporaryOwner(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	remote := repositorytest.NewRemoteStore()
	cache := repositorytest.NewCache()
	repo := NewCourseRepository(remote, cache, auth.NewChainResolver(cache))
	repo.now = func() time.Time { return time.UnixMilli(1700000000000) }

	course, err := repo.CreateCourse(ctx, model.Course{Name: "Física"})
	c.Assert(err, qt.IsNil)
	c.Assert(course.OwnerID, qt.Equals, "temp-1700000000000")

	temp, err := cache.TempOwner(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(temp, qt.Equals, course.OwnerID)
	_, ok := remote.Course(course.OwnerID, course.ID)
	c.Assert(ok, qt.IsFalse)

	// Later calls resolve to the temporary owner and read the local copy.
	c.Assert(repo.ListCourses(ctx), qt.DeepEquals, []model.CourseSummary{course.Summary()})
	got, err := repo.GetCourse(ctx, course.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, course)
}

func TestListCoursesFallsBackToTemporarySnapshot(t *testing.T) {
	c := qt.New(t)
	f := newFixture("owner-1")
	ctx := context.Background()
	temp := model.Course{ID: "c1", Name: "Borrador", OwnerID: "temp-1", Students: []model.Student{}, Dates: []string{}}
	c.Assert(f.cache.SetTempOwner(ctx, "temp-1"), qt.IsNil)
	c.Assert(f.cache.SaveCourses(ctx, "temp-1", []model.Course{temp}), qt.IsNil)

	c.Assert(f.repo.ListCourses(ctx), qt.DeepEquals, []model.CourseSummary{{ID: "c1", Name: "Borrador"}})

	f.createCourse(c, "Física")
	c.Assert(f.repo.ListCourses(ctx), qt.DeepEquals, []model.CourseSummary{{ID: "id-1", Name: "Física"}})
}
