package seed

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/seguraabc/asistencia25/internal/model"
	"github.com/seguraabc/asistencia25/internal/repository/repositorytest"
	"github.com/seguraabc/asistencia25/internal/stats"
)

func TestExampleCourses(t *testing.T) {
	c := qt.New(t)
	courses, err := ExampleCourses("owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(courses, qt.HasLen, 3)

	names := make([]string, 0, len(courses))
	for _, course := range courses {
		names = append(names, course.Name)
		c.Assert(course.OwnerID, qt.Equals, "owner-1")
		for _, student := range course.Students {
			c.Assert(student.Attendances, qt.HasLen, len(course.Dates), qt.Commentf("student %s", student.Name))
		}
	}
	c.Assert(names, qt.DeepEquals, []string{"Matemáticas", "Física", "Historia"})

	maria := courses[0].Students[0]
	c.Assert(maria.Name, qt.Equals, "María García")
	c.Assert(stats.AverageGrade(maria), qt.Equals, 7.8)
	c.Assert(courses[0].Students[2].HasGrades(), qt.IsFalse)
}

func TestEnsureSeededInsertsOnce(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repositorytest.NewRemoteStore()
	cache := repositorytest.NewCache()
	seeder := New(store, cache)

	seeder.EnsureSeeded(ctx, "owner-1")
	list, err := store.ListCourseSummaries(ctx, "owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 3)
	c.Assert(cache.Courses("owner-1"), qt.HasLen, 3)

	c.Assert(store.DeleteCourse(ctx, "1", "owner-1"), qt.IsNil)
	seeder.EnsureSeeded(ctx, "owner-1")
	list, err = store.ListCourseSummaries(ctx, "owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)
}

func TestEnsureSeededSkipsOwnersWithCourses(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repositorytest.NewRemoteStore()
	existing := model.Course{ID: "c1", Name: "Química", OwnerID: "owner-1", Students: []model.Student{}, Dates: []string{}}
	c.Assert(store.InsertCourse(ctx, existing), qt.IsNil)

	New(store, repositorytest.NewCache()).EnsureSeeded(ctx, "owner-1")
	list, err := store.ListCourseSummaries(ctx, "owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []model.CourseSummary{{ID: "c1", Name: "Química"}})
}

func TestEnsureSeededRetriesAfterFailedCheck(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repositorytest.NewRemoteStore()
	seeder := New(store, repositorytest.NewCache())

	store.SetErr(errors.New("connection refused"))
	seeder.EnsureSeeded(ctx, "owner-1")
	store.SetErr(nil)
	list, err := store.ListCourseSummaries(ctx, "owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 0)

	seeder.EnsureSeeded(ctx, "owner-1")
	list, err = store.ListCourseSummaries(ctx, "owner-1")
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 3)
}
