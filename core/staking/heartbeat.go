package staking

import (
	"context"

	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
)

// MaybeHeartbeat submits one synthetic __heartbeat__ marketplace request
// per service whose epoch target is still unmet, every
// cfg.HeartbeatEveryCycles cycles, and only when this worker is the
// designated leader. In single-service mode
// Services reports just the active one.
func (c *Coordinator) MaybeHeartbeat(ctx context.Context, cycle int) {
	if c.cfg.HeartbeatEveryCycles <= 0 || cycle%c.cfg.HeartbeatEveryCycles != 0 {
		return
	}
	if !c.cfg.IsLeader() {
		return
	}

	for _, record := range c.targetServices() {
		gate, err := c.EpochGate(ctx, record)
		if err != nil {
			c.logger.WithError(err).WithField("service_id", record.ServiceID).Warn("failed to read epoch gate for heartbeat")
			continue
		}
		if gate.TargetMet() {
			continue
		}
		c.submitHeartbeat(ctx, record)
	}
}

func (c *Coordinator) targetServices() []domain.ServiceRecord {
	if c.services != nil {
		if svcs := c.services(); len(svcs) > 0 {
			return svcs
		}
	}
	return []domain.ServiceRecord{c.activeSvc()}
}

func (c *Coordinator) submitHeartbeat(ctx context.Context, record domain.ServiceRecord) {
	calldata, err := c.marketplace.PackRequest([]byte(domain.HeartbeatJobName), record.MechAddress, c.cfg.HeartbeatResponseTimeout)
	if err != nil {
		c.logger.WithError(err).Warn("failed to pack heartbeat request calldata")
		c.recordHeartbeat(false)
		return
	}

	privateKeyHex, err := decryptAgentKey(record, c.cfg.KeystorePassphrase)
	if err != nil {
		c.logger.WithError(err).Warn("failed to decrypt agent key for heartbeat")
		c.recordHeartbeat(false)
		return
	}
	opts, err := chain.Signer(privateKeyHex, record.ChainID)
	if err != nil {
		c.logger.WithError(err).Warn("failed to build heartbeat signer")
		c.recordHeartbeat(false)
		return
	}

	safe := chain.NewSafe(c.chainClient, record.ServiceSafe)
	tx, err := safe.ExecuteSingleOwner(ctx, c.marketplace.Address(), calldata, opts, privateKeyHex)
	if err != nil {
		c.logger.WithError(err).WithField("service_id", record.ServiceID).Warn("heartbeat submission failed")
		c.recordHeartbeat(false)
		return
	}
	if _, err := c.chainClient.WaitMined(ctx, tx); err != nil {
		c.logger.WithError(err).WithField("service_id", record.ServiceID).Warn("heartbeat transaction not confirmed")
		c.recordHeartbeat(false)
		return
	}
	c.recordHeartbeat(true)
}

func (c *Coordinator) recordHeartbeat(success bool) {
	if c.metrics == nil {
		return
	}
	if success {
		c.metrics.HeartbeatsTotal.Inc()
	}
}
