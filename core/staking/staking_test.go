package staking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/cache"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

func testCoordinator(activeSvc ActiveService, services Services) *Coordinator {
	return &Coordinator{
		activeSvc: activeSvc,
		services:  services,
		cfg:       &config.Config{},
		logger:    logging.New("staking", "error", "text"),
	}
}

func TestTargetServicesPrefersMultiServiceList(t *testing.T) {
	single := domain.ServiceRecord{ServiceID: 1}
	many := []domain.ServiceRecord{{ServiceID: 2}, {ServiceID: 3}}

	c := testCoordinator(func() domain.ServiceRecord { return single }, func() []domain.ServiceRecord { return many })

	got := c.targetServices()
	assert.Equal(t, many, got)
}

func TestTargetServicesFallsBackToActiveWhenServicesNilOrEmpty(t *testing.T) {
	single := domain.ServiceRecord{ServiceID: 1}

	c := testCoordinator(func() domain.ServiceRecord { return single }, nil)
	assert.Equal(t, []domain.ServiceRecord{single}, c.targetServices())

	c = testCoordinator(func() domain.ServiceRecord { return single }, func() []domain.ServiceRecord { return nil })
	assert.Equal(t, []domain.ServiceRecord{single}, c.targetServices())
}

func TestRecordHelpersNoPanicWithoutMetrics(t *testing.T) {
	c := testCoordinator(func() domain.ServiceRecord { return domain.ServiceRecord{} }, nil)

	assert.NotPanics(t, func() {
		c.recordCheckpoint("success")
		c.recordHeartbeat(true)
		c.recordHeartbeat(false)
		c.recordRestake("error")
	})
}

func TestEpochGateStateTargetMet(t *testing.T) {
	gate := domain.EpochGateState{RequestCount: 60, TargetCount: 60}
	assert.True(t, gate.TargetMet())

	gate.RequestCount = 59
	assert.False(t, gate.TargetMet())
}

func TestEpochGateCacheRoundTrips(t *testing.T) {
	c := testCoordinator(func() domain.ServiceRecord { return domain.ServiceRecord{} }, nil)
	c.epochCache = cache.New(cache.DefaultConfig())
	defer c.epochCache.Stop()

	want := domain.EpochGateState{ServiceID: 7, RequestCount: 10, TargetCount: 60, ObservedAt: time.Now()}
	c.epochCache.Set("0xsafe", want)

	cached, ok := c.epochCache.Get("0xsafe")
	assert.True(t, ok)
	assert.Equal(t, want, cached.(domain.EpochGateState))
}
