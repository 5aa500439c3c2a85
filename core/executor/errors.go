package executor

import (
	"regexp"
	"strings"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// toolNotFoundPattern downgrades a specific API-error shape to a
// warning with a zero exit code: a "tool not found in registry" stderr
// line is downgraded to a warning and the exit treated as zero.
var toolNotFoundPattern = regexp.MustCompile(`(?i)tool not found in registry`)

// apiErrorMarkers are the marketplace API error phrases used for
// API_ERROR classification.
var apiErrorMarkers = []string{
	"insufficient funds",
	"request already delivered",
	"invalid request id",
	"rate limit exceeded",
}

// toolErrorMarkers are stderr phrases indicating an MCP tool call itself
// failed (as opposed to the marketplace API rejecting the request),
// used for TOOL_ERROR classification.
var toolErrorMarkers = []string{
	"tool execution failed",
	"tool call failed",
	"mcp tool error",
	"tool returned an error",
}

// classify maps a subprocess run's outcome to one of the failure kinds.
// A timeout takes priority, then a loop-protection terminationReason
// (both are detected independently of the process exit code), then a
// scan of stderr for known error phrases, and only then a non-zero exit
// status. A "tool not found in registry" stderr line yields nil.
func classify(terminationReason TerminationReason, timedOut bool, exitCode int, stderrTail string) *domain.JobError {
	switch {
	case timedOut:
		return &domain.JobError{Kind: domain.ErrorTimeout, Message: "subprocess exceeded wall-clock timeout"}

	case terminationReason != ReasonNone:
		return &domain.JobError{Kind: domain.ErrorLoopProtection, Message: string(terminationReason)}

	case toolNotFoundPattern.MatchString(stderrTail):
		return nil

	case containsAny(stderrTail, toolErrorMarkers):
		return &domain.JobError{Kind: domain.ErrorToolError, Message: firstMatch(stderrTail, toolErrorMarkers)}

	case containsAny(stderrTail, apiErrorMarkers):
		return &domain.JobError{Kind: domain.ErrorAPIError, Message: firstMatch(stderrTail, apiErrorMarkers)}

	case isNetworkError(stderrTail):
		return &domain.JobError{Kind: domain.ErrorNetworkError, Message: strings.TrimSpace(stderrTail)}

	case exitCode != 0:
		return &domain.JobError{Kind: domain.ErrorProcessError, Message: "subprocess exited with non-zero status"}
	}

	return nil
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func firstMatch(haystack string, needles []string) string {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return n
		}
	}
	return ""
}

var networkErrorMarkers = []string{"connection refused", "i/o timeout", "no such host", "network is unreachable"}

func isNetworkError(stderrTail string) bool {
	return containsAny(stderrTail, networkErrorMarkers)
}
