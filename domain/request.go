// Package domain holds the data model shared by every phase of the worker
// core: requests observed on the marketplace, job definitions resolved
// through dependency chains, locally persisted service records, and the
// process-wide state the main loop threads between phases.
package domain

import "time"

// HeartbeatJobName is the reserved job name that marks a synthetic
// marketplace request used only to satisfy a staking epoch's activity
// target. The Claim Arbitrator special-cases it and never spawns the LLM
// subprocess for it.
const HeartbeatJobName = "__heartbeat__"

// Request is a unit of externally posted work observed via the indexer.
// The worker never mutates it directly; delivery is the only state change
// and is observed back through the marketplace contract, not written here.
type Request struct {
	ID                string
	Mech              string
	Sender            string
	WorkstreamID      string
	BlockTimestamp    time.Time
	IPFSHash          string
	Delivered         bool
	Dependencies      []string
	ResponseTimeout   *time.Time
	RequiredTools     []string
	JobName           string
}

// IsHeartbeat reports whether this request is the synthetic heartbeat job.
func (r *Request) IsHeartbeat() bool {
	return r != nil && r.JobName == HeartbeatJobName
}

// HasDependencies reports whether this request names any dependencies to
// resolve before it becomes eligible.
func (r *Request) HasDependencies() bool {
	return r != nil && len(r.Dependencies) > 0
}

// JobDefinitionStatus is the lifecycle state of a persistent job
// definition template.
type JobDefinitionStatus string

const (
	StatusPending    JobDefinitionStatus = "PENDING"
	StatusDelegating JobDefinitionStatus = "DELEGATING"
	StatusWaiting    JobDefinitionStatus = "WAITING"
	StatusCompleted  JobDefinitionStatus = "COMPLETED"
	StatusFailed     JobDefinitionStatus = "FAILED"
)

// IsTerminal reports whether the status is one from which a definition
// never transitions further.
func (s JobDefinitionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CodeMetadata describes the branch a job definition's work lands on.
type CodeMetadata struct {
	Branch     string
	BaseBranch string
}

// JobDefinition is a persistent template that a request's dependency list
// resolves to.
type JobDefinition struct {
	ID              string
	Name            string
	LastStatus      JobDefinitionStatus
	LastInteraction time.Time
	Code            *CodeMetadata
}
