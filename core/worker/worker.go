// Package worker assembles the Cycle Controller, Discovery, Eligibility,
// Claim, Executor, Deliverer, Staking Coordinator, and Rotator phases
// into the single main loop and owns the process-wide state
// ("WorkerState") those phases share.
package worker

import (
	"context"
	"time"

	"github.com/Jinn-Network/jinn-worker/core/claim"
	"github.com/Jinn-Network/jinn-worker/core/cycle"
	"github.com/Jinn-Network/jinn-worker/core/deliverer"
	"github.com/Jinn-Network/jinn-worker/core/discovery"
	"github.com/Jinn-Network/jinn-worker/core/eligibility"
	"github.com/Jinn-Network/jinn-worker/core/executor"
	"github.com/Jinn-Network/jinn-worker/core/maintenance"
	"github.com/Jinn-Network/jinn-worker/core/rotator"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/core/signingproxy"
	"github.com/Jinn-Network/jinn-worker/core/staking"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	wkerrors "github.com/Jinn-Network/jinn-worker/infrastructure/errors"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitFatal       = 1
	ExitStuckCycles = 2
	ExitInterrupted = 130
)

// WorkerState is the process-wide mutable state every phase reads or
// writes: the session maps, the active-service context, and the one
// process-wide listener, the signing proxy.
type WorkerState struct {
	Session   *session.State
	ActiveCtx *domain.ActiveServiceContext
	Proxy     *signingproxy.Proxy

	cycles        int
	lastRequestID string
}

// Report is the structured shutdown summary written on interrupt
// (SPEC_FULL.md supplemented feature "Structured shutdown report").
type Report struct {
	CyclesRun     int    `json:"cyclesRun"`
	LastRequestID string `json:"lastRequestId,omitempty"`
	ExitReason    string `json:"exitReason"`
}

// Worker owns every phase component and drives the main loop.
type Worker struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	state *WorkerState

	cycleCtrl   *cycle.Controller
	maintenance *maintenance.Maintenance
	discoverer  *discovery.Discoverer
	eligibility *eligibility.Filter
	arbitrator  *claim.Arbitrator
	executor    *executor.Executor
	deliverer   *deliverer.Deliverer
	staking     *staking.Coordinator
	rotator     *rotator.Rotator // nil unless cfg.MultiService
}

// New assembles a Worker from its already-constructed phase components.
// Wiring every client and infrastructure dependency those components
// need is cmd/jinn-worker's job; this constructor only orders them into
// the main loop.
func New(
	cfg *config.Config,
	logger *logging.Logger,
	m *metrics.Metrics,
	state *WorkerState,
	cycleCtrl *cycle.Controller,
	maint *maintenance.Maintenance,
	disc *discovery.Discoverer,
	elig *eligibility.Filter,
	arb *claim.Arbitrator,
	exec *executor.Executor,
	deliv *deliverer.Deliverer,
	stakingCoordinator *staking.Coordinator,
	rot *rotator.Rotator,
) *Worker {
	return &Worker{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		state:       state,
		cycleCtrl:   cycleCtrl,
		maintenance: maint,
		discoverer:  disc,
		eligibility: elig,
		arbitrator:  arb,
		executor:    exec,
		deliverer:   deliv,
		staking:     stakingCoordinator,
		rotator:     rot,
	}
}

// Run drives the main loop until the Cycle Controller decides to stop or
// ctx is cancelled, returning the process exit code and a shutdown
// report.
func (w *Worker) Run(ctx context.Context) (int, Report) {
	for {
		if ctx.Err() != nil {
			return ExitInterrupted, w.report("interrupted")
		}

		decision := w.cycleCtrl.Decide(time.Now())
		switch decision.Kind {
		case cycle.Stop:
			if w.metrics != nil {
				w.metrics.RecordCycle("stopped", 0)
			}
			return w.exitCodeFor(decision.StopReason), w.report(string(decision.StopReason))
		case cycle.Sleep:
			w.cycleCtrl.Sleep(ctx, decision.SleepFor)
			continue
		}

		w.runCycle(ctx)

		if ctx.Err() != nil {
			return ExitInterrupted, w.report("interrupted")
		}

		w.cycleCtrl.Sleep(ctx, w.cycleCtrl.PollInterval())
	}
}

func (w *Worker) exitCodeFor(reason cycle.StopReason) int {
	if reason == cycle.StopReasonStuckCycles {
		return ExitStuckCycles
	}
	return ExitSuccess
}

// runCycle executes one full pass through every phase.
func (w *Worker) runCycle(ctx context.Context) {
	started := time.Now()
	cycleID := logging.NewCycleID()
	ctx = logging.WithCycleID(ctx, cycleID)
	ctx = logging.WithPhase(ctx, "cycle")

	w.state.cycles++
	active, _ := w.state.ActiveCtx.Snapshot()

	w.maintenance.Run(ctx, active)
	w.staking.MaybeCheckpoint(ctx, w.state.cycles)
	w.staking.MaybeHeartbeat(ctx, w.state.cycles)

	processedRequest, stuck := w.runDiscoveryThroughDelivery(ctx)

	if w.metrics != nil {
		outcome := "idle"
		if processedRequest {
			outcome = "ran"
		}
		w.metrics.RecordCycle(outcome, time.Since(started))
	}

	if w.rotator != nil {
		if result, err := w.rotator.Evaluate(ctx, w.state.Proxy); err != nil {
			w.logger.WithError(err).Warn("rotation failed, keeping current active service")
			w.recordPhaseError("rotation", wkerrors.ErrCodeRotationFailed, err)
		} else if result.Switched {
			w.state.Proxy = result.NewProxy
		}
	}

	w.cycleCtrl.RecordCycle(processedRequest, stuck)
}

// runDiscoveryThroughDelivery runs rows C-G: Discovery, Eligibility,
// Claim, Executor, Deliverer. Skipped entirely once the active service
// has met its epoch's activity target.
func (w *Worker) runDiscoveryThroughDelivery(ctx context.Context) (processedRequest, stuck bool) {
	targetMet, err := w.staking.ActivityTargetMet(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read activity-target gate, proceeding with discovery")
	} else if targetMet {
		return false, false
	}

	candidates, err := w.discoverer.Discover(ctx, w.cfg.TemplatePickupEnabled())
	if err != nil {
		w.logger.WithError(err).Warn("discovery failed")
		w.recordPhaseError("discovery", wkerrors.ErrCodeIndexerUnavailable, err)
		return false, false
	}

	candidate, sessionDedupStuck := w.eligibility.Select(ctx, candidates)
	if candidate == nil {
		return false, sessionDedupStuck
	}

	ctx = logging.WithRequestID(ctx, candidate.ID)
	w.state.lastRequestID = candidate.ID

	result, err := w.arbitrator.Arbitrate(ctx, *candidate)
	if err != nil {
		w.logger.WithError(err).WithField("request_id", candidate.ID).Warn("claim arbitration failed")
		w.recordPhaseError("claim", wkerrors.ErrCodeClaimRejected, err)
		return false, false
	}

	switch result.Verdict {
	case claim.VerdictWon:
		jobResult := w.executor.Run(ctx, result.Request, w.state.Proxy, nil)
		if err := w.deliverer.Deliver(ctx, result.Request, jobResult); err != nil {
			w.logger.WithError(err).WithField("request_id", result.Request.ID).Warn("delivery failed")
			w.recordPhaseError("delivery", wkerrors.ErrCodeDeliveryFailed, err)
		}
		return true, false
	case claim.VerdictHeartbeat:
		if err := w.deliverer.Deliver(ctx, result.Request, domain.JobResult{RequestID: result.Request.ID}); err != nil {
			w.logger.WithError(err).Warn("heartbeat delivery failed")
			w.recordPhaseError("delivery", wkerrors.ErrCodeDeliveryFailed, err)
		}
		return true, false
	default:
		return false, false
	}
}

// recordPhaseError increments the phase-error counter with the error's
// own coded classification when it carries one (core/worker's
// collaborators don't currently emit *errors.WorkerError, so this is a
// forward-compatible extension point), falling back to the phase's
// default code otherwise.
func (w *Worker) recordPhaseError(phase string, defaultCode wkerrors.ErrorCode, err error) {
	if w.metrics == nil {
		return
	}
	code := wkerrors.CodeOf(err)
	if code == "" {
		code = defaultCode
	}
	w.metrics.PhaseErrors.WithLabelValues(phase, string(code)).Inc()
}

func (w *Worker) report(reason string) Report {
	return Report{
		CyclesRun:     w.state.cycles,
		LastRequestID: w.state.lastRequestID,
		ExitReason:    reason,
	}
}
