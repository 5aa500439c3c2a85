package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

func TestRunCleanupFiresOnConfiguredCadence(t *testing.T) {
	cfg := &config.Config{CleanupEveryCycles: 3}
	s := session.New()
	defer s.Stop()
	s.MarkExecuted("req-1")
	s.Executed.SetTTL("req-expired", time.Now(), time.Nanosecond)

	m := New(cfg, logging.New("maintenance", "error", "text"), metrics.New(nil), s, nil, nil)

	for i := 0; i < 2; i++ {
		m.Run(context.Background(), domain.ServiceRecord{})
		require.Equal(t, 2, s.Sizes()["executed"]) // cleanup not due yet
	}

	m.Run(context.Background(), domain.ServiceRecord{})
	assert.Equal(t, 1, s.Sizes()["executed"]) // third cycle evicts req-expired; req-1 not expired yet, still present
}

func TestRunSkipsFundCheckWithoutToken(t *testing.T) {
	cfg := &config.Config{CleanupEveryCycles: 0, FundCheckEveryCycles: 1}
	s := session.New()
	defer s.Stop()

	m := New(cfg, logging.New("maintenance", "error", "text"), metrics.New(nil), s, nil, nil)

	// Should not panic despite a nil middleware/token client, since the
	// fund-check subcycle is gated on m.token != nil.
	m.Run(context.Background(), domain.ServiceRecord{ConfigID: "svc-1"})
}

func TestRunCleanupDisabledWhenZero(t *testing.T) {
	cfg := &config.Config{CleanupEveryCycles: 0}
	s := session.New()
	defer s.Stop()
	s.MarkExecuted("req-1")

	m := New(cfg, logging.New("maintenance", "error", "text"), metrics.New(nil), s, nil, nil)
	for i := 0; i < 100; i++ {
		m.Run(context.Background(), domain.ServiceRecord{})
	}
	assert.Equal(t, 1, s.Sizes()["executed"])
}
