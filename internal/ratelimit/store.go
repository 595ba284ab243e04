// Package ratelimit provides pluggable fixed-window rate limiting backends:
// an in-memory store for single-instance deployments and a Redis-compatible
// store when several instances must share counters.
package ratelimit

import (
	"context"
	"time"
)

// Store is a windowed counter backend
type Store interface {
	// Get retrieves the current count and window expiry for a key
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Increment atomically bumps the counter, creating it with the given
	// window when absent, and returns the new count.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset clears the counter for a key
	Reset(ctx context.Context, key string) error

	// Close releases backend resources
	Close() error
}

// Result is the outcome of one rate limit check
type Result struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}

// Check increments the key's counter and decides whether the request fits
// within limit per window.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:   count <= limit,
		Remaining: limit - count,
		Limit:     limit,
		ResetAt:   time.Now().Add(window),
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}
