// Package cache provides a read-through cache for LMS launch lookups.
// Launches are read-heavy relative to the rest of the API, and an approved
// resource's latest version changes rarely.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"openshare/pkg/domain"
)

// LaunchCache stores launch snapshots for approved resources.
type LaunchCache interface {
	Get(resourceID uint) (domain.LaunchSnapshot, bool, error)
	Set(snap domain.LaunchSnapshot) error
	Invalidate(resourceID uint) error
}

// RedisLaunchCache keeps snapshots in Redis with a TTL.
type RedisLaunchCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLaunchCache builds a Redis-backed launch cache.
func NewRedisLaunchCache(addr, password string, ttl time.Duration) *RedisLaunchCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLaunchCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl:    ttl,
		prefix: "openshare:launch",
	}
}

func (c *RedisLaunchCache) key(resourceID uint) string {
	return fmt.Sprintf("%s:%d", c.prefix, resourceID)
}

// Get returns the cached snapshot for a resource, if present.
func (c *RedisLaunchCache) Get(resourceID uint) (domain.LaunchSnapshot, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := c.client.Get(ctx, c.key(resourceID)).Bytes()
	if err == redis.Nil {
		return domain.LaunchSnapshot{}, false, nil
	}
	if err != nil {
		return domain.LaunchSnapshot{}, false, err
	}
	var snap domain.LaunchSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.LaunchSnapshot{}, false, fmt.Errorf("decode launch snapshot: %w", err)
	}
	return snap, true, nil
}

// Set stores a snapshot with TTL.
func (c *RedisLaunchCache) Set(snap domain.LaunchSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode launch snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return c.client.Set(ctx, c.key(snap.Resource.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached snapshot for a resource.
func (c *RedisLaunchCache) Invalidate(resourceID uint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, c.key(resourceID)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// NoopLaunchCache is used when no Redis address is configured.
type NoopLaunchCache struct{}

func (NoopLaunchCache) Get(uint) (domain.LaunchSnapshot, bool, error) {
	return domain.LaunchSnapshot{}, false, nil
}

func (NoopLaunchCache) Set(domain.LaunchSnapshot) error { return nil }

func (NoopLaunchCache) Invalidate(uint) error { return nil }
