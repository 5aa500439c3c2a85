package deliverer

import (
	"regexp"
	"strings"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// maxFallbackSummaryLength bounds the "last N characters" fallback.
const maxFallbackSummaryLength = 1200

// summaryHeadingPattern matches any of the section headings the CLI's
// own output convention uses to mark a final human-readable recap,
// case-insensitively and tolerant of markdown emphasis around the
// heading.
var summaryHeadingPattern = regexp.MustCompile(`(?im)^\s*\**\s*(execution summary|summary|final summary)\s*:?\s*\**\s*$`)

// ExtractSummary finds a structured summary section in output, falling
// back to its last maxFallbackSummaryLength characters when no heading
// is present.
func ExtractSummary(output string) string {
	loc := summaryHeadingPattern.FindStringIndex(output)
	if loc != nil {
		return strings.TrimSpace(output[loc[1]:])
	}
	if len(output) <= maxFallbackSummaryLength {
		return strings.TrimSpace(output)
	}
	return strings.TrimSpace(output[len(output)-maxFallbackSummaryLength:])
}

// cidPattern matches a bare IPFS content identifier, either the legacy
// base58 CIDv0 form (Qm...) or a base32 CIDv1 (bafy...), wherever one
// appears in free text.
var cidPattern = regexp.MustCompile(`\bQm[1-9A-HJ-NP-Za-km-z]{44}\b|\bbafy[a-z2-7]{20,}\b`)

// ExtractArtifacts scans a job's output and tool-call telemetry for IPFS
// content identifiers and returns one descriptor per distinct CID found,
// in first-seen order.
func ExtractArtifacts(output string, telemetry *domain.Telemetry) []domain.ArtifactDescriptor {
	seen := make(map[string]struct{})
	var artifacts []domain.ArtifactDescriptor

	addFrom := func(text, kind string) {
		for _, cid := range cidPattern.FindAllString(text, -1) {
			if _, ok := seen[cid]; ok {
				continue
			}
			seen[cid] = struct{}{}
			artifacts = append(artifacts, domain.ArtifactDescriptor{CID: cid, Kind: kind})
		}
	}

	addFrom(output, "output")
	if telemetry != nil {
		for _, call := range telemetry.ToolCalls {
			addFrom(call.Result, "tool_result")
			for _, v := range call.Args {
				if s, ok := v.(string); ok {
					addFrom(s, "tool_arg")
				}
			}
		}
	}
	return artifacts
}
