package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleEvictEvery = 10 * time.Minute
	throttleMaxIdle    = 30 * time.Minute
)

// LoginThrottle rate limits login attempts per client key (usually the
// remote IP). Idle limiters are evicted so the map does not grow unbounded.
type LoginThrottle struct {
	mu        sync.Mutex
	limiters  map[string]*throttleEntry
	limit     rate.Limit
	burst     int
	lastEvict time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginThrottle creates a throttle allowing perMinute attempts per key
func NewLoginThrottle(perMinute int) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &LoginThrottle{
		limiters:  make(map[string]*throttleEntry),
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     perMinute,
		lastEvict: time.Now(),
	}
}

// Allow reports whether the key may attempt a login now. Eviction of idle
// limiters piggybacks on the call so no background goroutine is needed.
func (t *LoginThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastEvict) >= throttleEvictEvery {
		t.evictLocked(throttleMaxIdle)
		t.lastEvict = time.Now()
	}

	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Evict drops limiters not seen within maxIdle
func (t *LoginThrottle) Evict(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(maxIdle)
}

func (t *LoginThrottle) evictLocked(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	for key, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
		}
	}
}
