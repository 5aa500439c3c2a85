package staking

import (
	"context"
	"math/big"
	"time"

	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
)

// RestakeOutcome reports what happened when the Coordinator considered
// restaking one service.
type RestakeOutcome struct {
	ServiceID          uint64
	Restaked           bool
	Blocked            bool
	UnstakeAvailableAt time.Time
	Err                error
}

// AutoRestake checks every known service's on-chain staking state and
// restakes the ones found EVICTED or UNSTAKED, subject to a cooldown and
// a free slot check. It is meant to run at
// startup and again whenever a previously blocked service's
// unstake-available-at timestamp has passed.
func (c *Coordinator) AutoRestake(ctx context.Context) []RestakeOutcome {
	var outcomes []RestakeOutcome
	for _, record := range c.targetServices() {
		outcomes = append(outcomes, c.restakeOne(ctx, record))
	}
	return outcomes
}

func (c *Coordinator) restakeOne(ctx context.Context, record domain.ServiceRecord) RestakeOutcome {
	serviceID := new(big.Int).SetUint64(record.ServiceID)

	state, err := c.staking.GetStakingState(ctx, serviceID)
	if err != nil {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}
	if state != chain.StakingState(domain.StakingStateEvicted) && state != chain.StakingState(domain.StakingStateUnstaked) {
		return RestakeOutcome{ServiceID: record.ServiceID}
	}

	if cached, ok := c.restakeCooldowns.Get(record.ConfigID); ok {
		return RestakeOutcome{ServiceID: record.ServiceID, Blocked: true, UnstakeAvailableAt: cached.(time.Time)}
	}

	availableAt, err := c.staking.UnstakeAvailableAt(ctx, serviceID)
	if err != nil {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}
	if time.Now().Before(availableAt) {
		c.restakeCooldowns.SetTTL(record.ConfigID, availableAt, time.Until(availableAt))
		return RestakeOutcome{ServiceID: record.ServiceID, Blocked: true, UnstakeAvailableAt: availableAt}
	}

	ids, err := c.staking.GetServiceIds(ctx)
	if err != nil {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}
	maxServices, err := c.staking.MaxNumServices(ctx)
	if err != nil {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}
	if int64(len(ids)) >= maxServices.Int64() {
		c.restakeCooldowns.Set(record.ConfigID, time.Now().Add(c.cfg.RestakeCooldown))
		return RestakeOutcome{ServiceID: record.ServiceID, Blocked: true}
	}

	if err := c.middleware.StartService(ctx, record.ConfigID); err != nil {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}

	newState, err := c.staking.GetStakingState(ctx, serviceID)
	if err != nil || newState != chain.StakingState(domain.StakingStateStaked) {
		c.recordRestake("error")
		return RestakeOutcome{ServiceID: record.ServiceID, Err: err}
	}

	c.recordRestake("success")
	return RestakeOutcome{ServiceID: record.ServiceID, Restaked: true}
}

func (c *Coordinator) recordRestake(status string) {
	if c.metrics != nil {
		c.metrics.RestakesTotal.WithLabelValues(status).Inc()
	}
}
