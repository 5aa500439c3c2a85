package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Hour})
	defer c.Stop()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, CleanupInterval: time.Hour})
	defer c.Stop()

	c.SetTTL("a", "x", 10*time.Millisecond)
	require.True(t, c.Has("a"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Has("a"))
}

func TestEvict(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, CleanupInterval: time.Hour})
	defer c.Stop()

	c.SetTTL("expired", 1, time.Millisecond)
	c.SetTTL("fresh", 2, time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := c.Evict()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestDoubleStop(t *testing.T) {
	c := New(DefaultConfig())
	c.Stop()
	assert.NotPanics(t, func() { c.Stop() })
}
