package chain

import (
	"math/big"
	"testing"
)

func TestStakingABIPack(t *testing.T) {
	methods := []struct {
		name string
		args []any
	}{
		{"getServiceIds", nil},
		{"getServiceInfo", []any{big.NewInt(1)}},
		{"getStakingState", []any{big.NewInt(1)}},
		{"tsCheckpoint", nil},
		{"livenessPeriod", nil},
		{"getNextRewardCheckpointTimestamp", nil},
		{"availableRewards", nil},
		{"maxNumServices", nil},
		{"checkpoint", nil},
	}
	for _, m := range methods {
		if _, err := stakingABI.Pack(m.name, m.args...); err != nil {
			t.Errorf("pack %s: %v", m.name, err)
		}
	}
}

func TestNewStaking(t *testing.T) {
	s := NewStaking(&Client{}, "0x1234567890123456789012345678901234567890")
	if s.client == nil {
		t.Error("expected client to be set")
	}
}
