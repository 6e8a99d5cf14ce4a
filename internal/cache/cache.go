// Package cache provides a Redis-backed read cache for hot job-status
// polling. Implementations must be safe for concurrent use.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the job-status caching interface.
type Cache interface {
	SetJobStatus(ctx context.Context, jobID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) (string, bool, error)
	InvalidateJob(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
}

// jobStatusKey builds the cache key for a job's status.
func jobStatusKey(jobID string) string {
	return "voicelingua:job:" + jobID + ":status"
}

// RedisCache implements Cache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache.
// Parameters:
//   - addr: Redis host:port.
//   - password: Redis password; "" for none.
//   - db: Redis logical database.
// Returns:
//   - *RedisCache: connected cache client.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetJobStatus caches a job's status string with a TTL.
func (c *RedisCache) SetJobStatus(ctx context.Context, jobID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, jobStatusKey(jobID), status, ttl).Err()
}

// GetJobStatus reads a cached job status. The bool reports a hit.
func (c *RedisCache) GetJobStatus(ctx context.Context, jobID string) (string, bool, error) {
	val, err := c.client.Get(ctx, jobStatusKey(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// InvalidateJob drops a job's cached status. Called on every status write so
// readers never see a stale terminal state.
func (c *RedisCache) InvalidateJob(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, jobStatusKey(jobID)).Err()
}

// Noop is a Cache that stores nothing, used when the cache is disabled and
// in tests.
type Noop struct{}

// NewNoop creates a no-op cache.
func NewNoop() *Noop { return &Noop{} }

func (Noop) SetJobStatus(context.Context, string, string, time.Duration) error { return nil }
func (Noop) GetJobStatus(context.Context, string) (string, bool, error)        { return "", false, nil }
func (Noop) InvalidateJob(context.Context, string) error                       { return nil }
func (Noop) Ping(context.Context) error                                        { return nil }
