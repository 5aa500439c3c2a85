// Package maintenance runs the main loop's periodic housekeeping ahead of
// Discovery: session-map eviction and the fund top-up scan. Checkpoint trigger and heartbeat
// submission are also named in that row but detailed, and owned, by
// core/staking's §4.H Staking Coordinator — this package only runs the
// two subcycles that have nowhere better to live.
package maintenance

import (
	"context"
	"math/big"

	"github.com/Jinn-Network/jinn-worker/clients/middleware"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// FundStatus reports the active service safe's funding state against the
// middleware daemon's own requirement figure.
type FundStatus struct {
	Address        string
	Balance        *big.Int
	Required       *big.Int
	BelowWaterMark bool
}

// Maintenance owns the cycle counters for the two subcycles it runs.
type Maintenance struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *metrics.Metrics
	session    *session.State
	middleware *middleware.Client
	token      *chain.Token

	cycles int
}

// New builds a Maintenance. token may be nil when no fund contract is
// configured, in which case the fund-check subcycle is skipped.
func New(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics, sessionState *session.State, middlewareClient *middleware.Client, token *chain.Token) *Maintenance {
	return &Maintenance{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		session:    sessionState,
		middleware: middlewareClient,
		token:      token,
	}
}

// Run advances the cycle counter and fires whichever subcycles are due.
// Called once per main-loop cycle, before Discovery.
func (m *Maintenance) Run(ctx context.Context, active domain.ServiceRecord) {
	m.cycles++

	if m.cfg.CleanupEveryCycles > 0 && m.cycles%m.cfg.CleanupEveryCycles == 0 {
		m.runCleanup()
	}

	if m.token != nil && m.cfg.FundCheckEveryCycles > 0 && m.cycles%m.cfg.FundCheckEveryCycles == 0 {
		if _, err := m.runFundCheck(ctx, active); err != nil {
			m.logger.WithError(err).Warn("fund top-up scan failed")
		}
	}
}

// runCleanup evicts every expired session-map entry and updates the
// session-map-size gauge. Runs every cfg.CleanupEveryCycles cycles (50
// by default).
func (m *Maintenance) runCleanup() {
	evicted := m.session.Evict()
	sizes := m.session.Sizes()
	for name, n := range evicted {
		if m.metrics != nil {
			m.metrics.SessionMapSize.WithLabelValues(name).Set(float64(sizes[name]))
		}
		if n > 0 {
			m.logger.WithField("map", name).WithField("evicted", n).Info("evicted expired session-map entries")
		}
	}
}

// runFundCheck compares the active service safe's on-chain token balance
// against the middleware daemon's own funding-requirement figure, logging
// a warning when the safe is below water. It never tops up itself — the
// worker process holds no funding source to draw from.
func (m *Maintenance) runFundCheck(ctx context.Context, active domain.ServiceRecord) (*FundStatus, error) {
	reqs, err := m.middleware.GetFundingRequirements(ctx, active.ConfigID)
	if err != nil {
		return nil, err
	}
	required, ok := new(big.Int).SetString(reqs.RequiredAmount, 10)
	if !ok {
		required = big.NewInt(0)
	}

	balance, err := m.token.BalanceOf(ctx, active.ServiceSafe)
	if err != nil {
		return nil, err
	}

	status := &FundStatus{
		Address:        active.ServiceSafe,
		Balance:        balance,
		Required:       required,
		BelowWaterMark: balance.Cmp(required) < 0,
	}
	if status.BelowWaterMark {
		m.logger.WithField("service_safe", active.ServiceSafe).
			WithField("balance", balance.String()).
			WithField("required", required.String()).
			Warn("service safe balance below funding requirement")
	}
	return status, nil
}
