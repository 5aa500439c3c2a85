// Package session holds the per-process execution session state maps:
// which requests this process already executed, which dependency
// redispatches and missing-dependency cancellations are on cooldown.
// Factored out of core/eligibility, core/claim, and core/deliverer (all
// three read or write it) and core/maintenance (which evicts it) to
// avoid an import cycle between those packages.
package session

import (
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/cache"
)

// Per-map TTLs for the session-dedup map, recent-repost map, and
// dependency cooldown maps (24h, 1h, 4h respectively).
const (
	ExecutedTTL            = 24 * time.Hour
	RecentRepostTTL        = time.Hour
	DependencyCooldownTTL  = 4 * time.Hour
)

// State is the process-wide session state.
type State struct {
	Executed            *cache.Cache
	RecentReposts        *cache.Cache
	DependencyCooldowns  *cache.Cache
}

// New builds a State with its three backing TTL maps, each with its own
// cleanup goroutine; Evict is also callable directly from the periodic
// maintenance subcycle so GC cadence follows cycle count, not wall clock.
func New() *State {
	return &State{
		Executed:           cache.New(cache.Config{DefaultTTL: ExecutedTTL, CleanupInterval: time.Hour}),
		RecentReposts:       cache.New(cache.Config{DefaultTTL: RecentRepostTTL, CleanupInterval: 10 * time.Minute}),
		DependencyCooldowns: cache.New(cache.Config{DefaultTTL: DependencyCooldownTTL, CleanupInterval: 30 * time.Minute}),
	}
}

// MarkExecuted records that requestID ran this session.
func (s *State) MarkExecuted(requestID string) {
	s.Executed.Set(requestID, time.Now())
}

// WasExecuted reports whether requestID already ran this session.
func (s *State) WasExecuted(requestID string) bool {
	return s.Executed.Has(requestID)
}

func redispatchKey(workstreamID, dependency string) string {
	return workstreamID + "|" + dependency
}

// RedispatchAllowed reports whether the stale-dependency redispatch
// cooldown for (workstreamID, dependency) has elapsed (one redispatch
// per workstream/dependency pair per cooldown window).
func (s *State) RedispatchAllowed(workstreamID, dependency string) bool {
	return !s.RecentReposts.Has(redispatchKey(workstreamID, dependency))
}

// MarkRedispatched starts the redispatch cooldown for (workstreamID, dependency).
func (s *State) MarkRedispatched(workstreamID, dependency string) {
	s.RecentReposts.Set(redispatchKey(workstreamID, dependency), time.Now())
}

func cancelKey(requestID, dependency string) string {
	return requestID + "|" + dependency
}

// CancelAllowed reports whether the missing-dependency auto-cancel
// cooldown for (requestID, dependency) has elapsed (one cancel per
// request/dependency pair per cooldown window).
func (s *State) CancelAllowed(requestID, dependency string) bool {
	return !s.DependencyCooldowns.Has(cancelKey(requestID, dependency))
}

// MarkCancelled starts the auto-cancel cooldown for (requestID, dependency).
func (s *State) MarkCancelled(requestID, dependency string) {
	s.DependencyCooldowns.Set(cancelKey(requestID, dependency), time.Now())
}

// Evict drops every expired entry from every map and returns how many
// were removed, keyed by map name.
func (s *State) Evict() map[string]int {
	return map[string]int{
		"executed":             s.Executed.Evict(),
		"recent_reposts":       s.RecentReposts.Evict(),
		"dependency_cooldowns": s.DependencyCooldowns.Evict(),
	}
}

// Sizes reports the current (including not-yet-evicted) size of every map,
// for the session-map-size gauge.
func (s *State) Sizes() map[string]int {
	return map[string]int{
		"executed":             s.Executed.Len(),
		"recent_reposts":       s.RecentReposts.Len(),
		"dependency_cooldowns": s.DependencyCooldowns.Len(),
	}
}

// Stop halts every map's background cleanup goroutine.
func (s *State) Stop() {
	s.Executed.Stop()
	s.RecentReposts.Stop()
	s.DependencyCooldowns.Stop()
}
