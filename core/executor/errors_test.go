package executor

import (
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestClassifyTimeout(t *testing.T) {
	err := classify(ReasonNone, true, 1, "")
	if err == nil || err.Kind != domain.ErrorTimeout {
		t.Fatalf("expected ErrorTimeout, got %+v", err)
	}
}

func TestClassifyLoopProtection(t *testing.T) {
	err := classify(ReasonRepeatedLine, false, 1, "")
	if err == nil || err.Kind != domain.ErrorLoopProtection {
		t.Fatalf("expected ErrorLoopProtection, got %+v", err)
	}
}

func TestClassifyToolNotFoundDowngradedToNil(t *testing.T) {
	err := classify(ReasonNone, false, 1, "Error: tool not found in registry")
	if err != nil {
		t.Fatalf("expected nil (downgraded to warning), got %+v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	err := classify(ReasonNone, false, 1, "request failed: insufficient funds")
	if err == nil || err.Kind != domain.ErrorAPIError {
		t.Fatalf("expected ErrorAPIError, got %+v", err)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	err := classify(ReasonNone, false, 1, "dial tcp: connection refused")
	if err == nil || err.Kind != domain.ErrorNetworkError {
		t.Fatalf("expected ErrorNetworkError, got %+v", err)
	}
}

func TestClassifyProcessError(t *testing.T) {
	err := classify(ReasonNone, false, 1, "")
	if err == nil || err.Kind != domain.ErrorProcessError {
		t.Fatalf("expected ErrorProcessError, got %+v", err)
	}
}

func TestClassifySuccessIsNil(t *testing.T) {
	err := classify(ReasonNone, false, 0, "")
	if err != nil {
		t.Fatalf("expected nil for clean exit, got %+v", err)
	}
}
