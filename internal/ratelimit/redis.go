package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisPrefix = "ratelimit:"

// RedisStore shares counters across instances through a Redis-compatible
// backend (Redis, Dragonfly, Valkey, KeyDB).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the backend; url is a redis:// URL
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis-compatible rate limit backend")
	return &RedisStore{client: client}, nil
}

// Get retrieves the current count and window expiry for a key
func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, redisPrefix+key)
	ttlCmd := pipe.TTL(ctx, redisPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, err
	}

	count, err := getCmd.Int64()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	var expiresAt time.Time
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	return count, expiresAt, nil
}

// Increment bumps the counter and sets the window expiry on first hit
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, redisPrefix+key)
	pipe.ExpireNX(ctx, redisPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incrCmd.Val(), nil
}

// Reset clears the counter for a key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisPrefix+key).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
