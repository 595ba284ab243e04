package middleware

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sensitiveQueryParams are redacted from logged query strings
var sensitiveQueryParams = []string{"token", "access_token", "refresh_token", "password", "secret"}

// LoggerConfig tunes the request logger
type LoggerConfig struct {
	SkipPaths            []string
	SlowRequestThreshold time.Duration
}

// DefaultLoggerConfig skips health and metrics noise and warns on requests
// slower than one second.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		SkipPaths:            []string{"/health", "/metrics", "/ws/status"},
		SlowRequestThreshold: time.Second,
	}
}

// RequestLogger logs one structured line per request
func RequestLogger(cfg LoggerConfig) fiber.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		case cfg.SlowRequestThreshold > 0 && elapsed > cfg.SlowRequestThreshold:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", elapsed).
			Str("ip", c.IP())

		if query := redactQuery(string(c.Request().URI().QueryString())); query != "" {
			event = event.Str("query", query)
		}
		if caller := CallerFrom(c); caller != nil {
			event = event.Int64("user_id", caller.UserID)
		}
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("Request")

		return err
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[redacted]"
	}
	for _, param := range sensitiveQueryParams {
		if values.Has(param) {
			values.Set(param, "[redacted]")
		}
	}
	return values.Encode()
}
