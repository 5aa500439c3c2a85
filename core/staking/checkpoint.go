package staking

import (
	"context"
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
)

// MaybeCheckpoint calls the staking contract's permissionless checkpoint()
// function every cfg.CheckpointEveryCycles cycles, once its
// getNextRewardCheckpointTimestamp() has passed. Failure is non-fatal: the caller logs and moves
// on, trying again next cycle boundary.
func (c *Coordinator) MaybeCheckpoint(ctx context.Context, cycle int) {
	if c.cfg.CheckpointEveryCycles <= 0 || cycle%c.cfg.CheckpointEveryCycles != 0 {
		return
	}

	nextTS, err := c.staking.GetNextRewardCheckpointTimestamp(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to read next reward checkpoint timestamp")
		c.recordCheckpoint("error")
		return
	}
	if nextTS.After(time.Now()) {
		return
	}

	record := c.activeSvc()
	privateKeyHex, err := decryptAgentKey(record, c.cfg.KeystorePassphrase)
	if err != nil {
		c.logger.WithError(err).Warn("failed to decrypt agent key for checkpoint call")
		c.recordCheckpoint("error")
		return
	}
	opts, err := chain.Signer(privateKeyHex, record.ChainID)
	if err != nil {
		c.logger.WithError(err).Warn("failed to build checkpoint signer")
		c.recordCheckpoint("error")
		return
	}

	tx, err := c.staking.Checkpoint(ctx, opts)
	if err != nil {
		c.logger.WithError(err).Warn("checkpoint() call failed")
		c.recordCheckpoint("error")
		return
	}
	if _, err := c.chainClient.WaitMined(ctx, tx); err != nil {
		c.logger.WithError(err).Warn("checkpoint() transaction not confirmed")
		c.recordCheckpoint("error")
		return
	}
	c.recordCheckpoint("success")
}

func (c *Coordinator) recordCheckpoint(status string) {
	if c.metrics != nil {
		c.metrics.CheckpointsTotal.WithLabelValues(status).Inc()
	}
}
