// Package staking implements the Staking Coordinator: the
// activity-target gate that skips a cycle's Discovery/Execution phase
// once an epoch's reward target is met, the permissionless checkpoint
// trigger, the leader-only heartbeat submission, and auto-restake for
// evicted or unstaked services.
package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/Jinn-Network/jinn-worker/clients/indexer"
	"github.com/Jinn-Network/jinn-worker/clients/middleware"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/cache"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/keystore"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// ActiveService reports the service record this worker currently acts
// as, the same closure shape core/claim and core/deliverer use so a
// Rotator switch is observed without rebuilding the Coordinator.
type ActiveService func() domain.ServiceRecord

// Services reports every service this operator owns, used by the
// multi-service heartbeat and auto-restake passes.
type Services func() []domain.ServiceRecord

// Coordinator runs the three staking subcycles.
type Coordinator struct {
	staking     *chain.Staking
	marketplace *chain.Marketplace
	chainClient *chain.Client
	indexer     *indexer.Client
	middleware  *middleware.Client
	activeSvc   ActiveService
	services    Services
	cfg         *config.Config
	metrics     *metrics.Metrics
	logger      *logging.Logger

	epochCache       *cache.Cache
	restakeCooldowns *cache.Cache
}

// New builds a Coordinator.
func New(stakingClient *chain.Staking, marketplace *chain.Marketplace, chainClient *chain.Client, idx *indexer.Client, mw *middleware.Client, activeSvc ActiveService, services Services, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		staking:          stakingClient,
		marketplace:      marketplace,
		chainClient:      chainClient,
		indexer:          idx,
		middleware:       mw,
		activeSvc:        activeSvc,
		services:         services,
		cfg:              cfg,
		metrics:          m,
		logger:           logger,
		epochCache:       cache.New(cache.Config{DefaultTTL: cfg.EpochGateCacheTTL, CleanupInterval: 10 * time.Minute}),
		restakeCooldowns: cache.New(cache.Config{DefaultTTL: cfg.RestakeCooldown, CleanupInterval: 10 * time.Minute}),
	}
}

// EpochGate returns the cached (or freshly queried) epoch-gate state for
// one service's safe.
func (c *Coordinator) EpochGate(ctx context.Context, record domain.ServiceRecord) (domain.EpochGateState, error) {
	if cached, ok := c.epochCache.Get(record.ServiceSafe); ok {
		return cached.(domain.EpochGateState), nil
	}

	tsCheckpoint, err := c.staking.TSCheckpoint(ctx)
	if err != nil {
		return domain.EpochGateState{}, fmt.Errorf("staking: tsCheckpoint: %w", err)
	}
	liveness, err := c.staking.LivenessPeriod(ctx)
	if err != nil {
		return domain.EpochGateState{}, fmt.Errorf("staking: livenessPeriod: %w", err)
	}
	count, err := c.indexer.RequestCount(ctx, record.ServiceSafe, tsCheckpoint)
	if err != nil {
		return domain.EpochGateState{}, fmt.Errorf("staking: request count: %w", err)
	}

	state := domain.EpochGateState{
		ServiceID:      record.ServiceID,
		TSCheckpoint:   tsCheckpoint,
		NextCheckpoint: tsCheckpoint.Add(liveness),
		RequestCount:   count,
		TargetCount:    uint64(c.cfg.ActivityTargetCount),
		ObservedAt:     tsCheckpoint,
	}
	c.epochCache.Set(record.ServiceSafe, state)
	return state, nil
}

// ActivityTargetMet reports whether the active service has already met
// its current epoch's request target, the signal the main loop uses to
// skip Discovery entirely for this cycle.
func (c *Coordinator) ActivityTargetMet(ctx context.Context) (bool, error) {
	gate, err := c.EpochGate(ctx, c.activeSvc())
	if err != nil {
		return false, err
	}
	return gate.TargetMet(), nil
}

// decryptAgentKey loads and decrypts record's agent keystore, the same
// step core/deliverer takes before signing a multisig transaction.
func decryptAgentKey(record domain.ServiceRecord, passphrase string) (string, error) {
	ks, err := keystore.Load(record.AgentKeystorePath)
	if err != nil {
		return "", fmt.Errorf("staking: load agent keystore: %w", err)
	}
	return keystore.Decrypt(ks, passphrase)
}
