// Package seed gives a newly seen owner a set of example courses so the
// first screen is not empty.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/seguraabc/asistencia25/internal/metrics"
	"github.com/seguraabc/asistencia25/internal/model"
)

var logger = loggo.GetLogger("rollbook.seed")

//go:embed example_courses.json
var exampleCourses []byte

type Store interface {
	HasCourses(ctx context.Context, ownerID string) (bool, error)
	InsertCourses(ctx context.Context, courses []model.Course) error
}

type Cache interface {
	SaveCourses(ctx context.Context, ownerID string, courses []model.Course) error
}

// Seeder checks each owner at most once per process.
type Seeder struct {
	store Store
	cache Cache
	seen  sync.Map
}

func New(store Store, cache Cache) *Seeder {
	return &Seeder{store: store, cache: cache}
}

// ExampleCourses returns the example courses assigned to ownerID.
func ExampleCourses(ownerID string) ([]model.Course, error) {
	var courses []model.Course
	if err := json.Unmarshal(exampleCourses, &courses); err != nil {
		return nil, errors.Annotate(err, "decoding example courses")
	}
	for i := range courses {
		courses[i].OwnerID = ownerID
	}
	return courses, nil
}

// EnsureSeeded inserts the example courses when ownerID has none. Failures
// are logged and never reach the caller; an owner whose check failed is
// retried on a later call.
func (s *Seeder) EnsureSeeded(ctx context.Context, ownerID string) {
	if ownerID == "" {
		return
	}
	if _, loaded := s.seen.LoadOrStore(ownerID, struct{}{}); loaded {
		return
	}
	if err := s.seed(ctx, ownerID); err != nil {
		s.seen.Delete(ownerID)
		logger.Warningf("seeding example courses for %s skipped: %v", ownerID, err)
	}
}

func (s *Seeder) seed(ctx context.Context, ownerID string) error {
	has, err := s.store.HasCourses(ctx, ownerID)
	if err != nil {
		return errors.Annotate(err, "checking existing courses")
	}
	if has {
		return nil
	}
	courses, err := ExampleCourses(ownerID)
	if err != nil {
		return err
	}
	if err := s.store.InsertCourses(ctx, courses); err != nil {
		return errors.Annotate(err, "inserting example courses")
	}
	if err := s.cache.SaveCourses(ctx, ownerID, courses); err != nil {
		logger.Warningf("caching example courses for %s: %v", ownerID, err)
	}
	metrics.SeededOwners.Inc()
	logger.Infof("seeded %d example courses for %s", len(courses), ownerID)
	return nil
}
