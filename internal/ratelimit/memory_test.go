package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWindow(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, expires, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.True(t, expires.After(time.Now()))

	// Keys are independent.
	count, _, err = s.Get(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreExpiredWindowRestarts(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.Increment(ctx, "k", -time.Second)
	require.NoError(t, err)

	// The expired window reads as empty and the next hit starts over.
	count, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStoreReset(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, "k"))

	count, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
}
