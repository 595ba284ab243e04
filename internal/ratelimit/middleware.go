package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// KeyFunc derives the limiter key for a request, usually the authenticated
// subject or the client IP.
type KeyFunc func(c *fiber.Ctx) string

// LimitFunc returns the current per-minute limit, letting the runtime
// settings cache tune it without a restart. Zero or negative disables.
type LimitFunc func() int

// IPKey keys by client IP
func IPKey(c *fiber.Ctx) string {
	return "ip:" + c.IP()
}

// Middleware enforces a fixed one-minute window per key. Store errors fail
// open: a broken limiter backend must not take the API down.
func Middleware(store Store, key KeyFunc, limit LimitFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		max := int64(limit())
		if max <= 0 {
			return c.Next()
		}

		result, err := Check(c.UserContext(), store, key(c), max, time.Minute)
		if err != nil {
			log.Error().Err(err).Msg("Rate limit check failed, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
