package domain

import (
	"sync"
	"time"
)

// ServiceRecord is a locally persisted configuration describing one
// staked service owned by this operator. It is created during initial
// setup, mutated only by management commands outside this process, and
// destroyed by terminate-and-withdraw — the worker core only ever reads
// it.
type ServiceRecord struct {
	ConfigID          string // directory name under <workDir>/.operate/services/
	ServiceID         uint64 // on-chain service numeric identifier
	MechAddress       string
	ServiceSafe       string // service multisig ("service safe") address
	AgentAddress      string // agent EOA address
	AgentKeystorePath string // path to the encrypted keystore, never the raw key
	StakingContract   string
	ChainID           uint64
}

// StakingState mirrors the staking contract's getStakingState() result.
type StakingState int

const (
	StakingStateUnstaked StakingState = 0
	StakingStateStaked   StakingState = 1
	StakingStateEvicted  StakingState = 2
)

func (s StakingState) String() string {
	switch s {
	case StakingStateUnstaked:
		return "unstaked"
	case StakingStateStaked:
		return "staked"
	case StakingStateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// ActiveServiceContext is the process-wide singleton holding which
// service the worker is currently acting as. It is swapped atomically by
// the Rotator; readers always observe a consistent (service id, mech
// address) pair — never a torn mix of old mech with new service id.
type ActiveServiceContext struct {
	mu      sync.RWMutex
	record  ServiceRecord
	version uint64
}

// NewActiveServiceContext seeds the context with the initial service.
func NewActiveServiceContext(initial ServiceRecord) *ActiveServiceContext {
	return &ActiveServiceContext{record: initial, version: 1}
}

// Snapshot returns a consistent copy of the currently active service and
// the version it was observed at.
func (a *ActiveServiceContext) Snapshot() (ServiceRecord, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record, a.version
}

// Swap atomically replaces the active service, bumping the version so
// callers holding a stale snapshot can detect the rotation.
func (a *ActiveServiceContext) Swap(next ServiceRecord) (previous ServiceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	previous = a.record
	a.record = next
	a.version++
	return previous
}

// EpochGateState is a cached view of the current staking epoch for one
// service's active multisig.
type EpochGateState struct {
	ServiceID       uint64
	TSCheckpoint    time.Time
	NextCheckpoint  time.Time
	RequestCount    uint64
	TargetCount     uint64
	ObservedAt      time.Time
}

// TargetMet reports whether the epoch's activity target has been reached.
func (e EpochGateState) TargetMet() bool {
	return e.RequestCount >= e.TargetCount
}

// InactivityEpochs is a coarse "how urgently does this service need
// activity" signal: 0 if the target is met, otherwise a monotonically
// increasing pressure value derived from how much of the epoch has
// elapsed versus how much of the target remains. Used by the Rotator's
// tiebreak.
func (e EpochGateState) InactivityEpochs() int {
	if e.TargetMet() {
		return 0
	}
	total := e.NextCheckpoint.Sub(e.TSCheckpoint)
	if total <= 0 {
		return 0
	}
	elapsed := time.Since(e.TSCheckpoint)
	if elapsed < 0 {
		elapsed = 0
	}
	fractionElapsed := float64(elapsed) / float64(total)
	remaining := e.TargetCount - e.RequestCount
	// Scale by how far through the epoch we are: a service that is
	// behind late in the epoch is more urgent than one behind early on.
	return int(float64(remaining) * (1 + fractionElapsed*4))
}
