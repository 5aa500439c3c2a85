package domain

import "time"

// TelemetryEvent is a tagged-union variant used in place of ad-hoc JSON
// introspection of the LLM tool's OpenTelemetry stream. Exactly one of
// the typed fields is populated, selected by Kind.
type TelemetryEventKind string

const (
	EventUserPrompt TelemetryEventKind = "gemini_cli.user_prompt"
	EventAPIRequest TelemetryEventKind = "gemini_cli.api_request"
	EventAPIResponse TelemetryEventKind = "gemini_cli.api_response"
	EventToolCall    TelemetryEventKind = "gemini_cli.tool_call"
	EventFunctionCall TelemetryEventKind = "function_call"
	EventUnknown     TelemetryEventKind = "unknown"
)

type TelemetryEvent struct {
	Kind      TelemetryEventKind
	Timestamp time.Time

	UserPrompt  string          // EventUserPrompt
	APIRequest  string          // EventAPIRequest: raw conversation-history text
	APIResponse *APIResponseEvent // EventAPIResponse
	ToolCall    *ToolCallEvent  // EventToolCall / EventFunctionCall
	Raw         map[string]any  // EventUnknown: unrecognized shape, kept for forward-compat
}

// APIResponseEvent captures one model turn's token accounting and text.
type APIResponseEvent struct {
	ResponseText     string
	InputTokens      int64
	OutputTokens     int64
	TotalTokens      int64
}

// ToolCallEvent records one invocation of an MCP tool by the subprocess.
type ToolCallEvent struct {
	Name     string
	Success  bool
	Duration time.Duration
	Args     map[string]any
	Result   string // attached post-hoc from the conversation history, may be empty
}

// Telemetry is the accumulated view built by parsing the subprocess's
// OpenTelemetry JSON file after the subprocess exits.
type Telemetry struct {
	Prompt            string
	ConversationHistory string
	InputTokens       int64
	OutputTokens      int64
	MaxTotalTokens    int64
	ToolCalls         []ToolCallEvent
}

// ArtifactDescriptor is an IPFS content descriptor surfaced by a job,
// parsed from telemetry and/or the final output.
type ArtifactDescriptor struct {
	Name string
	CID  string
	Kind string
}

// JobResult is what the Executor hands to the Deliverer: either a
// successful (or gracefully-failed-but-reportable) run's payload, or the
// JobError describing why no payload could be produced.
type JobResult struct {
	RequestID         string
	Output            string // ANSI-stripped, OpenTelemetry log lines removed
	StructuredSummary string
	LastStatus        string
	Telemetry         *Telemetry
	Artifacts         []ArtifactDescriptor
	ExitCode          int
	TerminationReason string // set iff a loop-protection detector tripped or the wall-clock timeout fired
	Cancelled         bool
	Err               *JobError
}
