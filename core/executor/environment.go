package executor

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// allowedExact and allowedPrefixes encode the subprocess environment
// allowlist: standard system variables, job context, non-secret endpoint
// URLs, LLM tool config, git identity, operator non-secret tokens,
// tool-specific non-secret IDs, telemetry config, and worker-runtime
// config prefixes. A host variable that matches an allowed prefix but
// looks like private-key material or a venture-scoped credential (for
// example NODE_PRIVATE_KEY) is still dropped by excludedPattern below.
var allowedExact = map[string]bool{
	"PATH": true, "HOME": true, "LANG": true, "LC_ALL": true, "TMPDIR": true,
	"GIT_AUTHOR_NAME": true, "GIT_AUTHOR_EMAIL": true,
	"GIT_COMMITTER_NAME": true, "GIT_COMMITTER_EMAIL": true,
}

var allowedPrefixes = []string{
	"NODE_",
	"GEMINI_",
	"LLM_",
	"JINN_JOB_",
	"JINN_TELEMETRY_",
	"JINN_RUNTIME_",
	"JINN_TOOL_",
}

var allowedPattern = regexp.MustCompile(`^(` + strings.Join(escapedPrefixes(), "|") + `)`)

func escapedPrefixes() []string {
	out := make([]string, len(allowedPrefixes))
	for i, p := range allowedPrefixes {
		out[i] = regexp.QuoteMeta(p)
	}
	return out
}

// excludedPattern catches anything that smells like secret material even
// if it happens to match an allowed prefix above — belt and suspenders
// against a misconfigured operator environment.
var excludedPattern = regexp.MustCompile(`(?i)(PRIVATE_KEY|SECRET|PASSWORD|VENTURE_CRED)`)

// BuildEnvironment constructs the subprocess environment: the host's
// allowlisted variables plus job-context, signing-proxy, and telemetry
// variables injected fresh for this run.
func BuildEnvironment(req domain.Request, signingProxyURL, signingProxyBearer, telemetryPath string) []string {
	env := make([]string, 0, 32)

	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if excludedPattern.MatchString(name) {
			continue
		}
		if allowedExact[name] || allowedPattern.MatchString(name) {
			env = append(env, kv)
		}
	}

	env = append(env,
		fmt.Sprintf("JINN_JOB_REQUEST_ID=%s", req.ID),
		fmt.Sprintf("JINN_JOB_WORKSTREAM_ID=%s", req.WorkstreamID),
		fmt.Sprintf("JINN_JOB_NAME=%s", req.JobName),
		fmt.Sprintf("JINN_SIGNING_PROXY_URL=%s", signingProxyURL),
		fmt.Sprintf("JINN_SIGNING_PROXY_BEARER=%s", signingProxyBearer),
		fmt.Sprintf("JINN_TELEMETRY_OUTPUT_FILE=%s", telemetryPath),
	)

	return env
}
