package executor

import "testing"

func TestLoopGuardMaxStdoutBytes(t *testing.T) {
	g := newLoopGuard(10, 100, 10, 10)
	if reason := g.observeChunk([]byte("12345")); reason != ReasonNone {
		t.Fatalf("unexpected trip: %v", reason)
	}
	if reason := g.observeChunk([]byte("123456")); reason != ReasonMaxStdout {
		t.Fatalf("expected ReasonMaxStdout, got %v", reason)
	}
}

func TestLoopGuardMaxChunkBytes(t *testing.T) {
	g := newLoopGuard(1000, 5, 10, 10)
	if reason := g.observeChunk([]byte("123456")); reason != ReasonMaxChunk {
		t.Fatalf("expected ReasonMaxChunk, got %v", reason)
	}
}

func TestLoopGuardRepeatedLine(t *testing.T) {
	g := newLoopGuard(10000, 10000, 3, 10)
	for i := 0; i < 2; i++ {
		if reason := g.observeLine("same"); reason != ReasonNone {
			t.Fatalf("unexpected trip on iteration %d: %v", i, reason)
		}
	}
	if reason := g.observeLine("same"); reason != ReasonRepeatedLine {
		t.Fatalf("expected ReasonRepeatedLine, got %v", reason)
	}
}

func TestLoopGuardBenignLineResetsCounter(t *testing.T) {
	g := newLoopGuard(10000, 10000, 2, 10)
	g.observeLine("same")
	g.observeLine("call: tool_x")
	if reason := g.observeLine("same"); reason != ReasonNone {
		t.Fatalf("benign line should have reset counter, got %v", reason)
	}
}

func TestLoopGuardRepeatedChunk(t *testing.T) {
	g := newLoopGuard(10000, 10000, 100, 3)
	for i := 0; i < 2; i++ {
		if reason := g.observeChunk([]byte("x")); reason != ReasonNone {
			t.Fatalf("unexpected trip on iteration %d: %v", i, reason)
		}
	}
	if reason := g.observeChunk([]byte("x")); reason != ReasonRepeatedChunk {
		t.Fatalf("expected ReasonRepeatedChunk, got %v", reason)
	}
}
