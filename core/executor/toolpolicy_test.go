package executor

import (
	"os"
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestGenerateToolSettingsFileReusesCacheForSameToolSet(t *testing.T) {
	clearToolPolicyCache()
	req := domain.Request{ID: "req-1", RequiredTools: []string{"shell", "browser"}}

	path1, err := generateToolSettingsFile(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(path1)

	path2, err := generateToolSettingsFile(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path1 != path2 {
		t.Fatalf("expected cached path reuse, got %q and %q", path1, path2)
	}
}

func TestClearToolPolicyCacheEmptiesMap(t *testing.T) {
	req := domain.Request{ID: "req-1", RequiredTools: []string{"shell"}}
	path, err := generateToolSettingsFile(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(path)

	clearToolPolicyCache()

	toolPolicyMu.Lock()
	size := len(toolPolicyCache)
	toolPolicyMu.Unlock()
	if size != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", size)
	}
}
