package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "POLL_BASE_INTERVAL", "POLL_MAX_INTERVAL", "MAX_STUCK_CYCLES", "HEARTBEAT_EVERY_CYCLES")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.BasePollInterval)
	assert.Equal(t, 5*time.Minute, cfg.MaxPollInterval)
	assert.Equal(t, 10, cfg.MaxStuckCycles)
	assert.Equal(t, 16, cfg.HeartbeatEveryCycles)
	assert.Equal(t, MechFilterSingle, cfg.MechFilterMode)
}

func TestLoadInvalidDuration(t *testing.T) {
	os.Setenv("POLL_BASE_INTERVAL", "not-a-duration")
	defer os.Unsetenv("POLL_BASE_INTERVAL")

	_, err := Load()
	assert.Error(t, err)
}

func TestIsLeader(t *testing.T) {
	cfg := &Config{WorkerIDSuffix: "0"}
	assert.True(t, cfg.IsLeader())
	cfg.WorkerIDSuffix = "3"
	assert.False(t, cfg.IsLeader())
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, b ,"))
}
