package clients

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/redis/go-redis/v9"

	"github.com/seguraabc/asistencia25/internal/config"
)

var logger = loggo.GetLogger("rollbook.clients")

// Clients bundles the connections to the remote store and the local cache.
// Either backend may be unreachable at startup; the repository falls back
// around whichever one is down.
type Clients struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func New(ctx context.Context, cfg config.Config) (*Clients, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Annotate(err, "configuring postgres pool")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})
	c := &Clients{Postgres: pool, Redis: redisClient}

	if err := ping(ctx, cfg.DialTimeout, pool.Ping); err != nil {
		logger.Warningf("postgres unreachable at startup: %v", err)
	}
	if err := ping(ctx, cfg.DialTimeout, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		logger.Warningf("redis unreachable at startup: %v", err)
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warningf("redis close error: %v", err)
		}
	}
}

func ping(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
