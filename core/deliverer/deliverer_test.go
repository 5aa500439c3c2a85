package deliverer

import (
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestBuildPayloadSuccessIncludesSummaryAndArtifacts(t *testing.T) {
	d := &Deliverer{}
	result := domain.JobResult{
		RequestID:  "req-1",
		Output:     "Execution Summary:\nshipped it\nartifact at QmTzQ1s2XWZVfiPfp8bGDHtMhV6D3VxLmq6CDJgVNiq2ym",
		LastStatus: "done",
		Telemetry:  &domain.Telemetry{InputTokens: 10, OutputTokens: 20},
	}

	p := d.buildPayload(result)
	if p.Summary != "shipped it\nartifact at QmTzQ1s2XWZVfiPfp8bGDHtMhV6D3VxLmq6CDJgVNiq2ym" {
		t.Fatalf("unexpected summary: %q", p.Summary)
	}
	if len(p.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %+v", p.Artifacts)
	}
	if p.InputTokens != 10 || p.OutputTokens != 20 {
		t.Fatalf("unexpected token accounting: %+v", p)
	}
	if p.Status != "done" || p.Error != "" {
		t.Fatalf("unexpected status/error: %+v", p)
	}
}

func TestBuildPayloadFailurePrefersJobError(t *testing.T) {
	d := &Deliverer{}
	result := domain.JobResult{
		RequestID: "req-2",
		Err:       &domain.JobError{Kind: domain.ErrorTimeout, Message: "subprocess exceeded its deadline"},
	}

	p := d.buildPayload(result)
	if p.Status != string(domain.ErrorTimeout) {
		t.Fatalf("expected status %q, got %q", domain.ErrorTimeout, p.Status)
	}
	if p.Error != "subprocess exceeded its deadline" {
		t.Fatalf("unexpected error message: %q", p.Error)
	}
	if p.Output != "" || len(p.Artifacts) != 0 {
		t.Fatalf("expected no output/artifacts on failure payload, got %+v", p)
	}
}

func TestBuildPayloadHonorsPrecomputedSummaryAndArtifacts(t *testing.T) {
	d := &Deliverer{}
	result := domain.JobResult{
		StructuredSummary: "already computed",
		Artifacts:         []domain.ArtifactDescriptor{{CID: "Qmabc", Kind: "manual"}},
		Output:            "Execution Summary:\nthis should be ignored",
	}

	p := d.buildPayload(result)
	if p.Summary != "already computed" {
		t.Fatalf("expected precomputed summary to win, got %q", p.Summary)
	}
	if len(p.Artifacts) != 1 || p.Artifacts[0].CID != "Qmabc" {
		t.Fatalf("expected precomputed artifacts to win, got %+v", p.Artifacts)
	}
}
