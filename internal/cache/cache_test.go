package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := newMemoryCache()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "key", []byte("value"), time.Minute)
	v, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	c := newMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "key", []byte("value"), -time.Second) // already expired
	_, ok := c.Get(ctx, "key")
	assert.False(t, ok)
}

func TestRedisCacheWithEmptyAddrUsesFallbackOnly(t *testing.T) {
	c := NewRedisCache("", nil)
	ctx := context.Background()

	c.Set(ctx, "leaderboard", []byte(`{"leaderboard":[]}`), time.Minute)
	v, ok := c.Get(ctx, "leaderboard")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"leaderboard":[]}`), v)
}

func TestRedisCacheDegradesWhenUnreachable(t *testing.T) {
	// Port 1 is never a live redis instance in test environments; every
	// call should fail over to the in-process fallback rather than error.
	c := NewRedisCache("127.0.0.1:1", nil)
	ctx := context.Background()

	c.Set(ctx, "key", []byte("value"), time.Minute)
	v, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
	assert.True(t, c.degraded)
}
