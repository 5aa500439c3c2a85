// Package deliverer implements the Deliverer phase: it
// builds the on-chain result payload from an Executor run, submits it
// through the active service's multisig, and records the dedup/quota
// side effects a successful delivery triggers.
package deliverer

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	workererrors "github.com/Jinn-Network/jinn-worker/infrastructure/errors"
	"github.com/Jinn-Network/jinn-worker/infrastructure/keystore"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// ActiveService reports the service record this worker currently acts
// as, threaded through as a closure (the same shape core/claim.ActiveMech
// uses) so a Rotator switch mid-run is observed on the next delivery
// instead of requiring the Deliverer to be rebuilt.
type ActiveService func() domain.ServiceRecord

// payload is the JSON blob written on-chain as the delivery's calldata.
// Field names are deliberately short; this blob, not a Go type, is the
// actual wire contract with downstream consumers of the marketplace
// event log.
type payload struct {
	Output      string                     `json:"output,omitempty"`
	Summary     string                     `json:"summary,omitempty"`
	Status      string                     `json:"status,omitempty"`
	Artifacts   []domain.ArtifactDescriptor `json:"artifacts,omitempty"`
	InputTokens int64                      `json:"input_tokens,omitempty"`
	OutputTokens int64                     `json:"output_tokens,omitempty"`
	Cancelled   bool                       `json:"cancelled,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

// Deliverer runs the Deliverer phase.
type Deliverer struct {
	chainClient *chain.Client
	marketplace *chain.Marketplace
	session     *session.State
	activeSvc   ActiveService
	cfg         *config.Config
	metrics     *metrics.Metrics
	logger      *logging.Logger
	limiter     *rate.Limiter
}

// New builds a Deliverer.
func New(chainClient *chain.Client, marketplace *chain.Marketplace, sessionState *session.State, activeSvc ActiveService, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) *Deliverer {
	var limiter *rate.Limiter
	if cfg.PostDeliveryQuotaDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.PostDeliveryQuotaDelay), 1)
	}
	return &Deliverer{
		chainClient: chainClient,
		marketplace: marketplace,
		session:     sessionState,
		activeSvc:   activeSvc,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
		limiter:     limiter,
	}
}

// Deliver builds the result payload for a finished Executor run and
// submits it through the active service's multisig.
func (d *Deliverer) Deliver(ctx context.Context, req domain.Request, result domain.JobResult) error {
	return d.deliver(ctx, req, d.buildPayload(result))
}

// DeliverCancelled implements core/eligibility.Canceller: it posts a
// synthetic cancelled result for a request whose dependency can never be
// satisfied.
func (d *Deliverer) DeliverCancelled(ctx context.Context, req domain.Request, reason string) error {
	return d.deliver(ctx, req, payload{Status: "CANCELLED", Cancelled: true, Error: reason})
}

func (d *Deliverer) buildPayload(result domain.JobResult) payload {
	if result.Err != nil {
		return payload{
			Status: string(result.Err.Kind),
			Error:  result.Err.Message,
		}
	}

	summary := result.StructuredSummary
	if summary == "" {
		summary = ExtractSummary(result.Output)
	}
	artifacts := result.Artifacts
	if artifacts == nil {
		artifacts = ExtractArtifacts(result.Output, result.Telemetry)
	}

	p := payload{
		Output:    result.Output,
		Summary:   summary,
		Status:    result.LastStatus,
		Artifacts: artifacts,
	}
	if result.Telemetry != nil {
		p.InputTokens = result.Telemetry.InputTokens
		p.OutputTokens = result.Telemetry.OutputTokens
	}
	return p
}

// deliver is the shared multisig-submission path for a normal result and
// a synthetic cancellation.
func (d *Deliverer) deliver(ctx context.Context, req domain.Request, p payload) error {
	record := d.activeSvc()

	data, err := json.Marshal(p)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeDeliveryFailed, "marshal delivery payload", err)
	}

	calldata, err := d.marketplace.PackDeliver(req.ID, data)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeDeliveryFailed, "pack deliverToMarketplace calldata", err)
	}

	ks, err := keystore.Load(record.AgentKeystorePath)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeKeystoreUnavailable, "load agent keystore", err)
	}
	privateKeyHex, err := keystore.Decrypt(ks, d.cfg.KeystorePassphrase)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeKeystoreUnavailable, "decrypt agent keystore", err)
	}

	opts, err := chain.Signer(privateKeyHex, record.ChainID)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeDeliveryFailed, "build signer", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryConfirmTimeout)
	defer cancel()

	safe := chain.NewSafe(d.chainClient, record.ServiceSafe)
	tx, err := safe.ExecuteSingleOwner(confirmCtx, d.marketplace.Address(), calldata, opts, privateKeyHex)
	if err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeDeliveryFailed, "submit multisig transaction", err)
	}

	if _, err := d.chainClient.WaitMined(confirmCtx, tx); err != nil {
		d.recordDelivery("failure")
		return workererrors.Wrap(workererrors.ErrCodeMultisigTimeout, fmt.Sprintf("multisig transaction %s not confirmed", tx.Hash()), err)
	}

	d.session.MarkExecuted(req.ID)
	d.recordDelivery("success")

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.WithError(err).Warn("post-delivery quota delay interrupted")
		}
	}
	return nil
}

func (d *Deliverer) recordDelivery(status string) {
	if d.metrics != nil {
		d.metrics.DeliveriesTotal.WithLabelValues(status).Inc()
	}
}
