// Package cache provides a small read-through cache for the report
// endpoints. Aggregating a month of sale rows on every dashboard poll is
// wasteful; the responses tolerate a short staleness window.
package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReportCache stores marshalled report payloads by key.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// RedisReportCache backs ReportCache with Redis.
type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// NoopReportCache satisfies ReportCache without storing anything; used when
// no Redis address is configured.
type NoopReportCache struct{}

func (NoopReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return nil
}
