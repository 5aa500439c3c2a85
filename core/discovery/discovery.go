// Package discovery produces the candidate list of undelivered
// marketplace requests potentially eligible for this worker.
package discovery

import (
	"context"

	"github.com/Jinn-Network/jinn-worker/clients/indexer"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

// MechResolver resolves the set of mech addresses to filter on.
type MechResolver interface {
	ResolveMechs(ctx context.Context) ([]string, error)
}

// staticMechResolver serves the "single" and "list" filter modes.
type staticMechResolver struct {
	addresses []string
}

func (r staticMechResolver) ResolveMechs(context.Context) ([]string, error) {
	return r.addresses, nil
}

// anyMechResolver serves the "any" filter mode: no filter, nil means
// unfiltered to the indexer query.
type anyMechResolver struct{}

func (anyMechResolver) ResolveMechs(context.Context) ([]string, error) { return nil, nil }

// stakingMechResolver serves the "staking" filter mode: derive mech
// addresses from the staking contract's registered services.
type stakingMechResolver struct {
	staking *chain.Staking
}

func (r stakingMechResolver) ResolveMechs(ctx context.Context) ([]string, error) {
	ids, err := r.staking.GetServiceIds(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(ids))
	for _, id := range ids {
		info, err := r.staking.GetServiceInfo(ctx, id)
		if err != nil {
			continue
		}
		if addr := extractMechAddress(info); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses, nil
}

// extractMechAddress decodes the staking program's service-info blob.
// The encoding is program-specific; this worker reads it as a 32-byte
// left-padded address, the common case for Solidity structs returning
// a single address field.
func extractMechAddress(info []byte) string {
	if len(info) < 32 {
		return ""
	}
	return "0x" + hexEncode(info[len(info)-20:])
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

// NewMechResolver builds the resolver named by cfg's mech filter mode.
func NewMechResolver(cfg *config.Config, staking *chain.Staking) MechResolver {
	switch cfg.MechFilterMode {
	case config.MechFilterList:
		return staticMechResolver{addresses: cfg.MechList}
	case config.MechFilterStaking:
		return stakingMechResolver{staking: staking}
	case config.MechFilterAny:
		return anyMechResolver{}
	default:
		return staticMechResolver{addresses: cfg.MechList}
	}
}

// Discoverer produces Discovery's candidate list.
type Discoverer struct {
	indexer      *indexer.Client
	marketplace  *chain.Marketplace
	mechResolver MechResolver
	cfg          *config.Config
	logger       *logging.Logger
}

// New builds a Discoverer.
func New(indexerClient *indexer.Client, marketplace *chain.Marketplace, mechResolver MechResolver, cfg *config.Config, logger *logging.Logger) *Discoverer {
	return &Discoverer{
		indexer:      indexerClient,
		marketplace:  marketplace,
		mechResolver: mechResolver,
		cfg:          cfg,
		logger:       logger,
	}
}

// Discover runs the full Discovery algorithm:
// resolve mech filter, query the indexer (plus a template query when
// enabled), merge+dedupe preserving order, then verify delivery state
// on-chain for each surviving candidate.
func (d *Discoverer) Discover(ctx context.Context, templatePickupEnabled bool) ([]domain.Request, error) {
	mechs, err := d.mechResolver.ResolveMechs(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("failed to resolve mech filter, proceeding unfiltered")
		mechs = nil
	}

	query := indexer.UndeliveredRequestsQuery{
		Mechs:         mechs,
		WorkstreamIDs: d.cfg.WorkstreamFilter,
		VentureIDs:    d.cfg.VentureFilter,
		Limit:         d.cfg.DiscoveryLimit,
	}

	requests, err := d.indexer.UndeliveredRequests(ctx, query)
	if err != nil {
		d.logger.WithError(err).Warn("indexer query failed, treating as no work")
		requests = nil
	}

	if templatePickupEnabled {
		templateQuery := query
		templateQuery.TemplateOnly = true
		templates, err := d.indexer.UndeliveredRequests(ctx, templateQuery)
		if err != nil {
			d.logger.WithError(err).Warn("template indexer query failed")
		} else {
			requests = mergeDedup(requests, templates)
		}
	}

	return d.verifyOnChain(ctx, requests), nil
}

// mergeDedup merges b into a, preserving a's order and appending only
// entries from b whose id was not already present.
func mergeDedup(a, b []domain.Request) []domain.Request {
	seen := make(map[string]struct{}, len(a))
	for _, r := range a {
		seen[r.ID] = struct{}{}
	}
	out := a
	for _, r := range b {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// verifyOnChain queries the marketplace contract for each candidate's
// delivery-mech address, dropping any already delivered by another mech
//. RPC failures keep the candidate, failing open
// since the claim step will reject a stale one anyway.
func (d *Discoverer) verifyOnChain(ctx context.Context, requests []domain.Request) []domain.Request {
	out := make([]domain.Request, 0, len(requests))
	for _, req := range requests {
		info, err := d.marketplace.RequestInfo(ctx, req.ID)
		if err != nil {
			d.logger.WithError(err).WithField("request_id", req.ID).Warn("marketplace lookup failed, keeping candidate")
			out = append(out, req)
			continue
		}
		if !info.IsUndelivered() {
			continue
		}
		if !info.ResponseTimeout.IsZero() {
			req.ResponseTimeout = &info.ResponseTimeout
		}
		out = append(out, req)
	}
	return out
}
