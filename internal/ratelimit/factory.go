package ratelimit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
)

// NewStore creates the configured rate limit backend. "local" (the default)
// keeps counters in memory; "redis" shares them across instances.
func NewStore(cfg config.RateLimitConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		log.Info().Msg("Using in-memory rate limit store")
		return NewMemoryStore(10 * time.Minute), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("ratelimit.redis_url is required for the redis backend")
		}
		store, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend %q (valid: local, redis)", cfg.Backend)
	}
}
