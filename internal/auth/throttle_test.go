package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginThrottleBurst(t *testing.T) {
	throttle := NewLoginThrottle(3)

	for i := 0; i < 3; i++ {
		assert.True(t, throttle.Allow("1.2.3.4"), "attempt %d", i)
	}
	assert.False(t, throttle.Allow("1.2.3.4"))

	// Keys are throttled independently.
	assert.True(t, throttle.Allow("5.6.7.8"))
}

func TestLoginThrottleEvict(t *testing.T) {
	throttle := NewLoginThrottle(1)

	assert.True(t, throttle.Allow("1.2.3.4"))
	assert.False(t, throttle.Allow("1.2.3.4"))

	// Evicting the idle limiter resets the key's budget.
	throttle.Evict(0)
	assert.True(t, throttle.Allow("1.2.3.4"))
}

func TestLoginThrottleDefaultRate(t *testing.T) {
	throttle := NewLoginThrottle(0)

	// The default budget admits a burst.
	for i := 0; i < 10; i++ {
		assert.True(t, throttle.Allow("k"), "attempt %d", i)
	}
	assert.False(t, throttle.Allow("k"))
}
