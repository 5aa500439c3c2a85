// Package eligibility reduces a Discovery candidate list to jobs this
// worker can actually run: a dependency filter with stale-dependency
// redispatch and missing-dependency auto-cancel side effects, an
// operator-capability filter, a credential filter, and a session-dedup
// filter.
package eligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jinn-Network/jinn-worker/clients/credentialbridge"
	"github.com/Jinn-Network/jinn-worker/clients/indexer"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/cache"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

// ventureToolPrefix marks a required-tool entry as naming a venture-scoped
// credential rather than an operator capability. Tool names and venture
// ids share one namespace in the indexer's enabledTools field; this
// worker distinguishes them by convention since there is no separate
// wire field for the two.
const ventureToolPrefix = "venture:"

// Canceller delivers a synthetic cancelled result for a request whose
// dependency can never be satisfied. core/deliverer implements this.
type Canceller interface {
	DeliverCancelled(ctx context.Context, req domain.Request, reason string) error
}

// Filter runs the four eligibility filters in order.
type Filter struct {
	indexer         *indexer.Client
	credentials     *credentialbridge.Client
	canceller       Canceller
	session         *session.State
	cfg             *config.Config
	logger          *logging.Logger
	credentialCache *cache.Cache
}

// New builds a Filter.
func New(idx *indexer.Client, creds *credentialbridge.Client, canceller Canceller, sessionState *session.State, cfg *config.Config, logger *logging.Logger) *Filter {
	return &Filter{
		indexer:         idx,
		credentials:     creds,
		canceller:       canceller,
		session:         sessionState,
		cfg:             cfg,
		logger:          logger,
		credentialCache: cache.New(cache.Config{DefaultTTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute}),
	}
}

// Select runs all four filters and returns the first surviving candidate,
// or none. The second return reports whether every candidate that
// reached the session-dedup filter was dropped there specifically — the
// signal core/cycle's stuck-cycle counter needs.
func (f *Filter) Select(ctx context.Context, candidates []domain.Request) (*domain.Request, bool) {
	survivors := f.dependencyFilter(ctx, candidates)
	survivors = f.capabilityFilter(survivors)
	survivors = f.credentialFilter(ctx, survivors)

	beforeDedup := len(survivors)
	deduped := make([]domain.Request, 0, len(survivors))
	for _, req := range survivors {
		if f.session.WasExecuted(req.ID) {
			continue
		}
		deduped = append(deduped, req)
	}

	stuck := beforeDedup > 0 && len(deduped) == 0
	if len(deduped) == 0 {
		return nil, stuck
	}
	return &deduped[0], false
}

// dependencyFilter drops candidates whose workstream dependency is not
// yet satisfied, with stale-dependency redispatch and missing-dependency
// auto-cancel side effects.
func (f *Filter) dependencyFilter(ctx context.Context, candidates []domain.Request) []domain.Request {
	out := make([]domain.Request, 0, len(candidates))
	for _, req := range candidates {
		if !req.HasDependencies() || f.dependenciesMet(ctx, req) {
			out = append(out, req)
		}
	}
	return out
}

func (f *Filter) dependenciesMet(ctx context.Context, req domain.Request) bool {
	met := true
	for _, dep := range req.Dependencies {
		definitionID := dep
		if _, err := uuid.Parse(dep); err != nil {
			resolved, resolveErr := f.indexer.ResolveDependencyDefinition(ctx, req.WorkstreamID, dep)
			if resolveErr != nil {
				met = false
				continue
			}
			definitionID = resolved
		}

		jd, err := f.indexer.JobDefinition(ctx, definitionID)
		if err != nil {
			f.handleMissingDependency(ctx, req, dep)
			met = false
			continue
		}
		if !jd.LastStatus.IsTerminal() {
			f.handleStaleDependency(ctx, req, jd, dep)
			met = false
		}
	}
	return met
}

// handleMissingDependency implements the "Missing-dependency cancel"
// side effect: a definition that does not exist at all, for a request old
// enough that it is never going to resolve.
func (f *Filter) handleMissingDependency(ctx context.Context, req domain.Request, dependency string) {
	if !f.cfg.DependencyAutoFailEnabled {
		return
	}
	if time.Since(req.BlockTimestamp) < f.cfg.MissingDependencyThreshold {
		return
	}
	if !f.session.CancelAllowed(req.ID, dependency) {
		return
	}
	f.session.MarkCancelled(req.ID, dependency)

	if f.canceller == nil {
		return
	}
	if err := f.canceller.DeliverCancelled(ctx, req, "missing dependency: "+dependency); err != nil {
		f.logger.WithError(err).WithField("request_id", req.ID).Warn("failed to deliver missing-dependency cancellation")
	}
}

// handleStaleDependency implements the "Stale-dependency redispatch" side
// effect: a definition that exists but has gone quiet.
func (f *Filter) handleStaleDependency(ctx context.Context, req domain.Request, jd *domain.JobDefinition, dependency string) {
	if !f.cfg.DependencyRedispatchEnabled {
		return
	}
	if time.Since(jd.LastInteraction) < f.cfg.StaleDependencyThreshold {
		return
	}
	if !f.session.RedispatchAllowed(req.WorkstreamID, dependency) {
		return
	}
	f.session.MarkRedispatched(req.WorkstreamID, dependency)

	if err := f.indexer.RedispatchDefinition(ctx, jd.ID); err != nil {
		f.logger.WithError(err).WithField("definition_id", jd.ID).Warn("failed to redispatch stale dependency")
	}
}

// capabilityFilter drops a candidate whose required tool set names a
// capability the operator does not have. Venture-scoped tools are
// excluded — those are the credential filter's concern.
func (f *Filter) capabilityFilter(candidates []domain.Request) []domain.Request {
	have := make(map[string]struct{}, len(f.cfg.OperatorCapabilities))
	for _, c := range f.cfg.OperatorCapabilities {
		have[c] = struct{}{}
	}

	out := make([]domain.Request, 0, len(candidates))
	for _, req := range candidates {
		ok := true
		for _, tool := range req.RequiredTools {
			if strings.HasPrefix(tool, ventureToolPrefix) {
				continue
			}
			if _, found := have[tool]; !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, req)
		}
	}
	return out
}

// credentialFilter drops a candidate whose tool set requires venture
// credentials the bridge cannot provide, and for trusted operators,
// reorders survivors so credential-requiring jobs come first.
func (f *Filter) credentialFilter(ctx context.Context, candidates []domain.Request) []domain.Request {
	reg, creds, probeErr := f.probeCredentials(ctx)
	if probeErr != nil {
		f.logger.WithError(probeErr).Warn("credential probe failed, dropping credential-gated candidates")
	}

	filtered := make([]domain.Request, 0, len(candidates))
	for _, req := range candidates {
		ventures := RequiredVentures(req)
		if len(ventures) == 0 {
			filtered = append(filtered, req)
			continue
		}
		if probeErr != nil {
			continue
		}
		sufficient := true
		for _, v := range ventures {
			if !creds.Has(v) {
				sufficient = false
				break
			}
		}
		if sufficient {
			filtered = append(filtered, req)
		}
	}

	if reg == nil || !reg.Trusted {
		return filtered
	}

	credRequiring := make([]domain.Request, 0, len(filtered))
	other := make([]domain.Request, 0, len(filtered))
	for _, req := range filtered {
		if len(RequiredVentures(req)) > 0 {
			credRequiring = append(credRequiring, req)
		} else {
			other = append(other, req)
		}
	}
	return append(credRequiring, other...)
}

// RequiredVentures extracts the venture-scoped credential names implied by
// req's required-tool set, exported so core/claim's pre-execution
// credential re-probe can reuse the same
// tool-name convention without duplicating it.
func RequiredVentures(req domain.Request) []string {
	var ventures []string
	for _, tool := range req.RequiredTools {
		if v, ok := strings.CutPrefix(tool, ventureToolPrefix); ok {
			ventures = append(ventures, v)
		}
	}
	return ventures
}

type probeResult struct {
	registration *credentialbridge.OperatorRegistration
	credentials  credentialbridge.AvailableCredentials
	err          error
}

// probeCredentials caches the bridge probe for a short TTL so every
// candidate in one Select call, and several consecutive cycles, share one
// round trip.
func (f *Filter) probeCredentials(ctx context.Context) (*credentialbridge.OperatorRegistration, credentialbridge.AvailableCredentials, error) {
	if f.credentials == nil {
		return nil, credentialbridge.AvailableCredentials{}, fmt.Errorf("eligibility: no credential bridge configured")
	}
	if cached, ok := f.credentialCache.Get("probe"); ok {
		p := cached.(probeResult)
		return p.registration, p.credentials, p.err
	}

	reg, regErr := f.credentials.Operator(ctx, f.cfg.OperatorAddress)
	creds, credsErr := f.credentials.Probe(ctx, f.cfg.OperatorAddress, "")
	var err error
	switch {
	case regErr != nil:
		err = regErr
	case credsErr != nil:
		err = credsErr
	}

	result := probeResult{registration: reg, credentials: creds, err: err}
	f.credentialCache.Set("probe", result)
	return reg, creds, err
}

// FlushCredentialCache discards the cached bridge probe so the next
// candidate forces a fresh round trip, used by the Rotator when the
// active service changes (the venture mapping differs per service).
func (f *Filter) FlushCredentialCache() {
	f.credentialCache.Delete("probe")
}
