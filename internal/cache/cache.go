package cache

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"github.com/seguraabc/asistencia25/internal/model"
)

const (
	coursesKeyPrefix = "courses_"
	tempOwnerKey     = "temp_owner_id"
	sessionKey       = "session_user"
)

// Cache is the local snapshot store. Each owner's courses live under one key
// as a JSON array; entries never expire.
type Cache struct {
	redis redis.Cmdable
}

func New(client redis.Cmdable) *Cache {
	return &Cache{redis: client}
}

func coursesKey(ownerID string) string {
	return coursesKeyPrefix + ownerID
}

// LoadCourses returns nil with no error when the owner has no snapshot.
func (c *Cache) LoadCourses(ctx context.Context, ownerID string) ([]model.Course, error) {
	value, err := c.redis.Get(ctx, coursesKey(ownerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "loading courses for %s", ownerID)
	}
	var courses []model.Course
	if err := json.Unmarshal([]byte(value), &courses); err != nil {
		return nil, errors.Annotatef(err, "decoding courses for %s", ownerID)
	}
	return courses, nil
}

func (c *Cache) SaveCourses(ctx context.Context, ownerID string, courses []model.Course) error {
	if courses == nil {
		courses = []model.Course{}
	}
	data, err := json.Marshal(courses)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(c.redis.Set(ctx, coursesKey(ownerID), data, 0).Err(), "saving courses for %s", ownerID)
}

// TempOwner returns "" when no temporary owner was generated yet.
func (c *Cache) TempOwner(ctx context.Context) (string, error) {
	value, err := c.redis.Get(ctx, tempOwnerKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, errors.Trace(err)
}

func (c *Cache) SetTempOwner(ctx context.Context, ownerID string) error {
	return errors.Trace(c.redis.Set(ctx, tempOwnerKey, ownerID, 0).Err())
}

// StoredSession returns the last session user seen, or nil.
func (c *Cache) StoredSession(ctx context.Context) (*model.SessionUser, error) {
	value, err := c.redis.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	var user model.SessionUser
	if err := json.Unmarshal([]byte(value), &user); err != nil {
		return nil, errors.Annotate(err, "decoding stored session")
	}
	return &user, nil
}

func (c *Cache) SaveSession(ctx context.Context, user model.SessionUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.redis.Set(ctx, sessionKey, data, 0).Err())
}

func (c *Cache) ClearSession(ctx context.Context) error {
	return errors.Trace(c.redis.Del(ctx, sessionKey).Err())
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
