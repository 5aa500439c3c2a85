package rotator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func gate(requestCount, targetCount uint64, elapsedFraction float64) domain.EpochGateState {
	now := time.Now()
	total := time.Hour * 24
	return domain.EpochGateState{
		TSCheckpoint:   now.Add(-time.Duration(float64(total) * elapsedFraction)),
		NextCheckpoint: now.Add(time.Duration(float64(total) * (1 - elapsedFraction))),
		RequestCount:   requestCount,
		TargetCount:    targetCount,
	}
}

func TestPickBestSkipsUnstakedAndTargetMet(t *testing.T) {
	candidates := []candidate{
		{record: domain.ServiceRecord{ConfigID: "unstaked"}, gate: gate(0, 60, 0.5), staked: false},
		{record: domain.ServiceRecord{ConfigID: "met"}, gate: gate(60, 60, 0.5), staked: true},
	}

	assert.Nil(t, pickBest(candidates))
}

func TestPickBestPrefersHigherInactivity(t *testing.T) {
	candidates := []candidate{
		{record: domain.ServiceRecord{ConfigID: "barely-behind"}, gate: gate(58, 60, 0.1), staked: true},
		{record: domain.ServiceRecord{ConfigID: "far-behind"}, gate: gate(5, 60, 0.9), staked: true},
	}

	best := pickBest(candidates)
	if assert.NotNil(t, best) {
		assert.Equal(t, "far-behind", best.record.ConfigID)
	}
}

func TestPickBestReturnsOnlyEligibleCandidate(t *testing.T) {
	candidates := []candidate{
		{record: domain.ServiceRecord{ConfigID: "met"}, gate: gate(60, 60, 0.5), staked: true},
		{record: domain.ServiceRecord{ConfigID: "eligible"}, gate: gate(10, 60, 0.2), staked: true},
	}

	best := pickBest(candidates)
	if assert.NotNil(t, best) {
		assert.Equal(t, "eligible", best.record.ConfigID)
	}
}
