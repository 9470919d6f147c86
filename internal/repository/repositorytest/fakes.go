// Package repositorytest provides in-memory stand-ins for the remote store
// and the local cache.
package repositorytest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/seguraabc/asistencia25/internal/model"
)

// RemoteStore keeps courses keyed by owner and id. Setting Err makes every
// call fail with it.
type RemoteStore struct {
	mu      sync.Mutex
	courses map[string]map[string]model.Course
	Err     error
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{courses: map[string]map[string]model.Course{}}
}

func (s *RemoteStore) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Course returns the stored document, bypassing Err.
func (s *RemoteStore) Course(ownerID, courseID string) (model.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[ownerID][courseID]
	return course.Clone(), ok
}

func (s *RemoteStore) put(course model.Course) {
	byID := s.courses[course.OwnerID]
	if byID == nil {
		byID = map[string]model.Course{}
		s.courses[course.OwnerID] = byID
	}
	byID[course.ID] = course.Clone()
}

func (s *RemoteStore) ListCourseSummaries(_ context.Context, ownerID string) ([]model.CourseSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []model.CourseSummary{}
	for _, course := range s.courses[ownerID] {
		out = append(out, course.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RemoteStore) HasCourses(_ context.Context, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	return len(s.courses[ownerID]) > 0, nil
}

func (s *RemoteStore) GetCourse(_ context.Context, courseID, ownerID string) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Course{}, s.Err
	}
	course, ok := s.courses[ownerID][courseID]
	if !ok {
		return model.Course{}, errors.NotFoundf("course %s", courseID)
	}
	return course.Clone(), nil
}

func (s *RemoteStore) InsertCourse(_ context.Context, course model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.put(course)
	return nil
}

func (s *RemoteStore) InsertCourses(_ context.Context, courses []model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, course := range courses {
		s.put(course)
	}
	return nil
}

// UpdateCourse ignores documents that do not exist, like the SQL update.
func (s *RemoteStore) UpdateCourse(_ context.Context, course model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.courses[course.OwnerID][course.ID]; ok {
		s.put(course)
	}
	return nil
}

func (s *RemoteStore) DeleteCourse(_ context.Context, courseID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.courses[ownerID], courseID)
	return nil
}

// Cache stores snapshots as JSON so reads never alias earlier writes.
// Setting Err makes every call fail with it.
type Cache struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	tempOwner string
	session   *model.SessionUser
	Err       error
}

func NewCache() *Cache {
	return &Cache{snapshots: map[string][]byte{}}
}

func (c *Cache) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Courses returns the owner's snapshot, bypassing Err.
func (c *Cache) Courses(ownerID string) []model.Course {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decode(ownerID)
}

func (c *Cache) decode(ownerID string) []model.Course {
	data, ok := c.snapshots[ownerID]
	if !ok {
		return nil
	}
	var courses []model.Course
	if err := json.Unmarshal(data, &courses); err != nil {
		panic(err)
	}
	return courses
}

func (c *Cache) LoadCourses(_ context.Context, ownerID string) ([]model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.decode(ownerID), nil
}

func (c *Cache) SaveCourses(_ context.Context, ownerID string, courses []model.Course) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	data, err := json.Marshal(courses)
	if err != nil {
		return err
	}
	c.snapshots[ownerID] = data
	return nil
}

func (c *Cache) TempOwner(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	return c.tempOwner, nil
}

func (c *Cache) SetTempOwner(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.tempOwner = ownerID
	return nil
}

func (c *Cache) StoredSession(context.Context) (*model.SessionUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.session == nil {
		return nil, nil
	}
	user := *c.session
	return &user, nil
}

func (c *Cache) SaveSession(_ context.Context, user model.SessionUser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.session = &user
	return nil
}

func (c *Cache) ClearSession(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.session = nil
	return nil
}
