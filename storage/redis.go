package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// RedisStorage persists not-before timestamps in Redis as unix
// milliseconds, keyed per device.
type RedisStorage struct {
	rdb *redis.Client
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}

func rateLimitKey(deviceID string) string {
	return fmt.Sprintf("vkclient:ratelimit:%s", deviceID)
}

// GetNotBefore returns the stored timestamp, zero when none.
func (s *RedisStorage) GetNotBefore(ctx context.Context, deviceID string) (time.Time, error) {
	millis, err := s.rdb.Get(ctx, rateLimitKey(deviceID)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get not-before failed: %w", err)
	}
	return time.UnixMilli(millis), nil
}

// SetNotBefore stores the timestamp. The key expires once the backoff
// window is safely past, so stale devices do not accumulate.
func (s *RedisStorage) SetNotBefore(ctx context.Context, deviceID string, t time.Time) error {
	ttl := time.Until(t) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}
	if err := s.rdb.Set(ctx, rateLimitKey(deviceID), t.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("set not-before failed: %w", err)
	}
	return nil
}
