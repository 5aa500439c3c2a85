package executor

import "testing"

func TestStatusExtractorFencedBlock(t *testing.T) {
	s := &statusExtractor{}
	if _, ok := s.Feed("```status"); ok {
		t.Fatal("fence open line should not itself produce a status")
	}
	if _, ok := s.Feed("working on step 2"); ok {
		t.Fatal("fence body line should not produce a status")
	}
	status, ok := s.Feed("```")
	if !ok {
		t.Fatal("expected fence close to produce a status")
	}
	if status != "working on step 2" {
		t.Fatalf("unexpected status: %q", status)
	}
}

func TestStatusExtractorKeyValue(t *testing.T) {
	s := &statusExtractor{}
	status, ok := s.Feed(`"TaskStatus": "building artifacts"`)
	if !ok || status != "building artifacts" {
		t.Fatalf("unexpected result: %q %v", status, ok)
	}
}

func TestStatusExtractorLegacyMarker(t *testing.T) {
	s := &statusExtractor{}
	status, ok := s.Feed("**Status Update:** compiling")
	if !ok || status != "compiling" {
		t.Fatalf("unexpected result: %q %v", status, ok)
	}
}

func TestStatusExtractorTruncatesLongStatus(t *testing.T) {
	s := &statusExtractor{}
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	status, ok := s.Feed(`"TaskStatus": "` + long + `"`)
	if !ok {
		t.Fatal("expected a match")
	}
	if len(status) != maxStatusLength {
		t.Fatalf("expected truncation to %d chars, got %d", maxStatusLength, len(status))
	}
}

func TestStatusExtractorNoMatch(t *testing.T) {
	s := &statusExtractor{}
	if _, ok := s.Feed("just a regular log line"); ok {
		t.Fatal("expected no match")
	}
}

func TestStripANSI(t *testing.T) {
	if got := stripANSI("\x1b[31mred\x1b[0m"); got != "red" {
		t.Fatalf("unexpected: %q", got)
	}
}
