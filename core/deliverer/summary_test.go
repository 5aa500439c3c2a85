package deliverer

import (
	"strings"
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestExtractSummaryFindsHeading(t *testing.T) {
	output := "some preamble\n\nExecution Summary:\nbuilt the thing and pushed a branch\n"
	got := ExtractSummary(output)
	if got != "built the thing and pushed a branch" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestExtractSummaryFallsBackToTail(t *testing.T) {
	output := strings.Repeat("x", maxFallbackSummaryLength+500)
	got := ExtractSummary(output)
	if len(got) != maxFallbackSummaryLength {
		t.Fatalf("expected fallback of length %d, got %d", maxFallbackSummaryLength, len(got))
	}
}

func TestExtractSummaryShortOutputReturnedWhole(t *testing.T) {
	output := "short output, no heading"
	got := ExtractSummary(output)
	if got != output {
		t.Fatalf("expected whole output back, got %q", got)
	}
}

func TestExtractArtifactsDedupesAcrossOutputAndTelemetry(t *testing.T) {
	output := "uploaded result at QmTzQ1s2XWZVfiPfp8bGDHtMhV6D3VxLmq6CDJgVNiq2ym"
	telemetry := &domain.Telemetry{
		ToolCalls: []domain.ToolCallEvent{
			{Name: "ipfs_upload", Result: "QmTzQ1s2XWZVfiPfp8bGDHtMhV6D3VxLmq6CDJgVNiq2ym"},
			{Name: "ipfs_upload", Result: "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"},
		},
	}
	artifacts := ExtractArtifacts(output, telemetry)
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 distinct artifacts, got %d: %+v", len(artifacts), artifacts)
	}
}

func TestExtractArtifactsNoneFound(t *testing.T) {
	artifacts := ExtractArtifacts("nothing interesting here", nil)
	if len(artifacts) != 0 {
		t.Fatalf("expected no artifacts, got %+v", artifacts)
	}
}
