package domain

import "time"

// TTL defaults for the session-scoped maps.
const (
	ExecutedJobsTTL       = 24 * time.Hour
	RecentRepostTTL       = 1 * time.Hour
	DependencyCooldownTTL = 4 * time.Hour
)

// SessionMapName identifies one of the worker's TTL-bounded in-memory
// maps, for logging and metrics labeling.
type SessionMapName string

const (
	MapExecutedJobs        SessionMapName = "executed_jobs"
	MapRecentReposts       SessionMapName = "recent_reposts"
	MapRedispatchCooldown  SessionMapName = "redispatch_cooldown"
	MapCancelCooldown      SessionMapName = "cancel_cooldown"
)

// ErrorKind classifies a job failure into one of a fixed set of kinds,
// used for metrics labels and for deciding delivery-payload content, not
// for Go error-wrapping (use infrastructure/errors for that).
type ErrorKind string

const (
	ErrorTimeout        ErrorKind = "TIMEOUT"
	ErrorLoopProtection ErrorKind = "LOOP_PROTECTION"
	ErrorProcessError   ErrorKind = "PROCESS_ERROR"
	ErrorAPIError       ErrorKind = "API_ERROR"
	ErrorNetworkError   ErrorKind = "NETWORK_ERROR"
	ErrorToolError      ErrorKind = "TOOL_ERROR"
	ErrorSystemError    ErrorKind = "SYSTEM_ERROR"
)

// JobError is the Executor's sum-typed failure result. A nil *JobError means the job produced a result
// normally, even if that result's status is itself a failure status.
type JobError struct {
	Kind      ErrorKind
	Message   string
	Telemetry *Telemetry
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}
