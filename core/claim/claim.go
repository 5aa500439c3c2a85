// Package claim implements the Claim Arbitrator: it
// obtains exclusive ownership of one surviving Eligibility candidate by
// calling the claim service, honors its alreadyClaimed/IN_PROGRESS/
// COMPLETED verdict, and applies the pre-execution refinement and
// heartbeat special cases.
package claim

import (
	"context"
	"time"

	"github.com/Jinn-Network/jinn-worker/clients/claimservice"
	"github.com/Jinn-Network/jinn-worker/clients/credentialbridge"
	"github.com/Jinn-Network/jinn-worker/core/eligibility"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// Verdict is the Claim Arbitrator's disposition for one candidate.
type Verdict int

const (
	// VerdictSkip means this candidate is not this worker's to execute
	// this cycle; no action was taken beyond bookkeeping.
	VerdictSkip Verdict = iota
	// VerdictWon means the claim service granted this worker exclusive
	// ownership; the Executor should run.
	VerdictWon
	// VerdictHeartbeat means the candidate is the reserved synthetic
	// heartbeat job; skip the Executor and deliver an empty result
	// directly.
	VerdictHeartbeat
)

func (v Verdict) String() string {
	switch v {
	case VerdictWon:
		return "won"
	case VerdictHeartbeat:
		return "heartbeat"
	default:
		return "skip"
	}
}

// Result is the Arbitrator's outcome for one candidate.
type Result struct {
	Verdict Verdict
	Request domain.Request
}

// ActiveMech reports the mech address this worker currently acts as,
// threaded through so a rotation mid-run is observed on the next call
// rather than captured once at construction.
type ActiveMech func() string

// Arbitrator runs the Claim Arbitrator phase.
type Arbitrator struct {
	claimService *claimservice.Client
	credentials  *credentialbridge.Client
	session      *session.State
	activeMech   ActiveMech
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// New builds an Arbitrator.
func New(claimService *claimservice.Client, credentials *credentialbridge.Client, sessionState *session.State, activeMech ActiveMech, m *metrics.Metrics, logger *logging.Logger) *Arbitrator {
	return &Arbitrator{
		claimService: claimService,
		credentials:  credentials,
		session:      sessionState,
		activeMech:   activeMech,
		metrics:      m,
		logger:       logger,
	}
}

// Arbitrate runs the claim arbitration steps for one candidate.
func (a *Arbitrator) Arbitrate(ctx context.Context, candidate domain.Request) (Result, error) {
	if candidate.IsHeartbeat() {
		return Result{Verdict: VerdictHeartbeat, Request: candidate}, nil
	}

	if ventures := eligibility.RequiredVentures(candidate); len(ventures) > 0 {
		if !a.verifyCredentials(ctx, candidate.ID, ventures) {
			a.recordClaim("credential_insufficient")
			return Result{Verdict: VerdictSkip, Request: candidate}, nil
		}
	}

	resp, err := a.claimService.Claim(ctx, candidate.ID)
	if err != nil {
		a.recordClaim("error")
		return Result{}, err
	}

	switch {
	case resp.AlreadyClaimed:
		a.recordClaim("already_claimed")
		return Result{Verdict: VerdictSkip, Request: candidate}, nil
	case resp.Status == claimservice.StatusCompleted:
		a.recordClaim("completed")
		return Result{Verdict: VerdictSkip, Request: candidate}, nil
	case resp.Status != claimservice.StatusInProgress:
		a.logger.WithField("request_id", candidate.ID).WithField("status", resp.Status).Warn("claim service returned an unrecognized status")
		a.recordClaim("unrecognized")
		return Result{Verdict: VerdictSkip, Request: candidate}, nil
	}

	// status == IN_PROGRESS: this worker won the claim.
	a.recordClaim("in_progress")

	if refined, skip := a.preExecutionRefine(candidate); skip {
		a.session.MarkExecuted(candidate.ID)
		return Result{Verdict: VerdictSkip, Request: refined}, nil
	}

	return Result{Verdict: VerdictWon, Request: candidate}, nil
}

// verifyCredentials re-probes the credential bridge scoped to requestID,
// skipping the candidate if the verified set is insufficient.
func (a *Arbitrator) verifyCredentials(ctx context.Context, requestID string, ventures []string) bool {
	if a.credentials == nil {
		return false
	}
	creds, err := a.credentials.Probe(ctx, "", requestID)
	if err != nil {
		a.logger.WithError(err).WithField("request_id", requestID).Warn("credential re-probe failed")
		return false
	}
	for _, v := range ventures {
		if !creds.Has(v) {
			return false
		}
	}
	return true
}

// preExecutionRefine performs a pre-execution refinement check:
// a claim won for a request whose priority mech isn't ours, while the
// response timeout hasn't yet passed, is released rather than executed —
// only the priority mech can deliver it until then, so running it would
// waste LLM quota for nothing.
func (a *Arbitrator) preExecutionRefine(candidate domain.Request) (domain.Request, bool) {
	if candidate.Mech == "" || a.activeMech == nil {
		return candidate, false
	}
	if candidate.Mech == a.activeMech() {
		return candidate, false
	}
	if candidate.ResponseTimeout != nil && time.Now().Before(*candidate.ResponseTimeout) {
		return candidate, true
	}
	return candidate, false
}

func (a *Arbitrator) recordClaim(result string) {
	if a.metrics != nil {
		a.metrics.ClaimsTotal.WithLabelValues(result).Inc()
	}
}
