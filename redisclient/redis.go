// Package redisclient wraps a Redis connection used as the ingestion
// scheduler's distributed per-repository lock (spec.md §5 concurrency
// model: at most one ingestion run per repository at a time).
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghillie/ghillie/config"
)

// Client wraps a Redis connection.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GHILLIE_REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

// Ping checks connectivity with a two-second timeout. The HTTP health and
// readiness handlers do not call it.
func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// RepositoryLock is a per-repository-slug mutex backed by Redis SET NX,
// ensuring the scheduler never runs two ingestion passes for the same
// repository concurrently even when scaled across multiple processes.
type RepositoryLock struct {
	client *Client
	ttl    time.Duration
}

// NewRepositoryLock returns a lock helper with the given lease TTL. The
// TTL bounds how long a crashed holder can block a repository.
func NewRepositoryLock(client *Client, ttl time.Duration) *RepositoryLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RepositoryLock{client: client, ttl: ttl}
}

func lockKey(repoSlug string) string { return "ghillie:ingestion-lock:" + repoSlug }

// TryAcquire attempts to take the lock for repoSlug, returning false
// without blocking if another holder already has it.
func (l *RepositoryLock) TryAcquire(ctx context.Context, repoSlug, holder string) (bool, error) {
	ok, err := l.client.c.SetNX(ctx, lockKey(repoSlug), holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisclient: acquire lock for %s: %w", repoSlug, err)
	}
	return ok, nil
}

// Release drops the lock for repoSlug. Callers should only release a lock
// they hold; releasing an expired lock is a harmless no-op.
func (l *RepositoryLock) Release(ctx context.Context, repoSlug string) error {
	if err := l.client.c.Del(ctx, lockKey(repoSlug)).Err(); err != nil {
		return fmt.Errorf("redisclient: release lock for %s: %w", repoSlug, err)
	}
	return nil
}
