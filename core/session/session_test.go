package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkExecutedAndWasExecuted(t *testing.T) {
	s := New()
	defer s.Stop()

	assert.False(t, s.WasExecuted("req-1"))
	s.MarkExecuted("req-1")
	assert.True(t, s.WasExecuted("req-1"))
}

func TestRedispatchCooldown(t *testing.T) {
	s := New()
	defer s.Stop()

	assert.True(t, s.RedispatchAllowed("ws-1", "dep-1"))
	s.MarkRedispatched("ws-1", "dep-1")
	assert.False(t, s.RedispatchAllowed("ws-1", "dep-1"))
	assert.True(t, s.RedispatchAllowed("ws-1", "dep-2"))
}

func TestCancelCooldown(t *testing.T) {
	s := New()
	defer s.Stop()

	assert.True(t, s.CancelAllowed("req-1", "dep-1"))
	s.MarkCancelled("req-1", "dep-1")
	assert.False(t, s.CancelAllowed("req-1", "dep-1"))
}

func TestEvictAndSizes(t *testing.T) {
	s := New()
	defer s.Stop()

	s.MarkExecuted("req-1")
	s.MarkRedispatched("ws-1", "dep-1")
	s.MarkCancelled("req-2", "dep-2")

	sizes := s.Sizes()
	assert.Equal(t, 1, sizes["executed"])
	assert.Equal(t, 1, sizes["recent_reposts"])
	assert.Equal(t, 1, sizes["dependency_cooldowns"])

	evicted := s.Evict()
	assert.Equal(t, 0, evicted["executed"])
}
