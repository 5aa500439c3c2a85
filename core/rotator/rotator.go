// Package rotator implements the Rotator: in multi-service
// mode, it re-evaluates every owned service each cycle and switches the
// active identity — signing key and mech address — when a service with
// greater near-term reward risk exists.
package rotator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Jinn-Network/jinn-worker/clients/claimservice"
	"github.com/Jinn-Network/jinn-worker/core/eligibility"
	"github.com/Jinn-Network/jinn-worker/core/signingproxy"
	"github.com/Jinn-Network/jinn-worker/core/staking"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/keystore"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// Rotator decides, once per cycle, whether the worker should switch
// which staked service it is currently acting as.
type Rotator struct {
	staking    *staking.Coordinator
	stakingAbi *chain.Staking
	activeCtx  *domain.ActiveServiceContext
	services   []domain.ServiceRecord

	claimSigner *claimservice.Client
	eligibility *eligibility.Filter

	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New builds a Rotator over the given ordered list of owned services.
func New(stakingCoordinator *staking.Coordinator, stakingAbi *chain.Staking, activeCtx *domain.ActiveServiceContext, services []domain.ServiceRecord, claimSigner *claimservice.Client, elig *eligibility.Filter, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) *Rotator {
	return &Rotator{
		staking:     stakingCoordinator,
		stakingAbi:  stakingAbi,
		activeCtx:   activeCtx,
		services:    services,
		claimSigner: claimSigner,
		eligibility: elig,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
	}
}

// candidate pairs a service with its current epoch-gate view.
type candidate struct {
	record domain.ServiceRecord
	gate   domain.EpochGateState
	staked bool
}

// SwitchResult reports what Evaluate did.
type SwitchResult struct {
	Switched bool
	Previous domain.ServiceRecord
	Next     domain.ServiceRecord
	// NewProxy is the signing proxy bound to Next's agent key, already
	// started. Evaluate has already stopped the old proxy; the caller
	// adopts this one as the live reference passed to the Executor from
	// here on. Nil unless Switched.
	NewProxy *signingproxy.Proxy
}

// Evaluate runs the per-cycle rotation algorithm: for every owned
// service, read its cached activity-target state; among the staked
// services that have not met their epoch target, pick the one with the
// highest inactivity-epoch count (see pickBest); switch to it if it
// differs from the currently active one. With fewer than two services
// it returns without switching. oldProxy is the signing proxy currently in use, stopped
// only on a successful switch — the caller keeps using it otherwise.
func (r *Rotator) Evaluate(ctx context.Context, oldProxy *signingproxy.Proxy) (SwitchResult, error) {
	if len(r.services) < 2 {
		return SwitchResult{}, nil
	}

	candidates := r.gatherCandidates(ctx)
	best := pickBest(candidates)
	if best == nil {
		return SwitchResult{}, nil
	}

	current, _ := r.activeCtx.Snapshot()
	if best.record.ConfigID == current.ConfigID {
		return SwitchResult{}, nil
	}

	result, err := r.switchTo(ctx, current, best.record, oldProxy)
	if err != nil {
		r.recordRotation("error")
		return SwitchResult{}, err
	}
	r.recordRotation("success")
	return result, nil
}

func (r *Rotator) gatherCandidates(ctx context.Context) []candidate {
	var out []candidate
	for _, record := range r.services {
		gate, err := r.staking.EpochGate(ctx, record)
		if err != nil {
			r.logger.WithError(err).WithField("service_id", record.ServiceID).Warn("rotator: failed to read epoch gate")
			continue
		}
		staked := true
		if r.stakingAbi != nil {
			state, err := r.stakingAbi.GetStakingState(ctx, new(big.Int).SetUint64(record.ServiceID))
			if err != nil {
				r.logger.WithError(err).WithField("service_id", record.ServiceID).Warn("rotator: failed to read staking state")
				continue
			}
			staked = state == chain.StakingState(domain.StakingStateStaked)
		}
		out = append(out, candidate{record: record, gate: gate, staked: staked})
	}
	return out
}

// pickBest chooses the staked, target-unmet candidate with the highest
// inactivity-epoch count. Returns nil if every
// candidate is either unstaked or has already met its target.
func pickBest(candidates []candidate) *candidate {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.staked || c.gate.TargetMet() {
			continue
		}
		if best == nil || c.gate.InactivityEpochs() > best.gate.InactivityEpochs() {
			best = c
		}
	}
	return best
}

// switchTo performs the active-service switch: atomic context swap,
// signer and credential cache flush, signing-proxy teardown and restart.
func (r *Rotator) switchTo(ctx context.Context, previous, next domain.ServiceRecord, oldProxy *signingproxy.Proxy) (SwitchResult, error) {
	privateKeyHex, err := decryptAgentKey(next, r.cfg.KeystorePassphrase)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("rotator: decrypt agent key for %s: %w", next.ConfigID, err)
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return SwitchResult{}, fmt.Errorf("rotator: parse agent key for %s: %w", next.ConfigID, err)
	}

	newProxy, err := signingproxy.New(key, r.logger)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("rotator: build signing proxy: %w", err)
	}
	if err := newProxy.Start(); err != nil {
		return SwitchResult{}, fmt.Errorf("rotator: start signing proxy: %w", err)
	}

	r.activeCtx.Swap(next)

	if r.claimSigner != nil {
		r.claimSigner.Rebind(key)
	}
	if r.eligibility != nil {
		r.eligibility.FlushCredentialCache()
	}
	if oldProxy != nil {
		if err := oldProxy.Stop(); err != nil {
			r.logger.WithError(err).Warn("rotator: failed to stop previous signing proxy")
		}
	}

	r.logger.WithField("previous", previous.ConfigID).WithField("next", next.ConfigID).Info("rotator: switched active service")
	return SwitchResult{Switched: true, Previous: previous, Next: next, NewProxy: newProxy}, nil
}

func (r *Rotator) recordRotation(status string) {
	if r.metrics != nil {
		r.metrics.RotationsTotal.WithLabelValues(status).Inc()
	}
}

func decryptAgentKey(record domain.ServiceRecord, passphrase string) (string, error) {
	ks, err := keystore.Load(record.AgentKeystorePath)
	if err != nil {
		return "", fmt.Errorf("rotator: load agent keystore: %w", err)
	}
	return keystore.Decrypt(ks, passphrase)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
