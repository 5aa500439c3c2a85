package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// toolPolicyCache memoizes the generated tool-settings JSON per distinct
// required-tool set until the cache is cleared. Executor.Run deletes the
// cached files and clears the cache at the end of every run, so the next
// run writes a fresh file even for an identical tool policy.
var (
	toolPolicyMu    sync.Mutex
	toolPolicyCache = map[string]string{}
)

func toolPolicyKey(tools []string) string {
	key := ""
	for _, t := range tools {
		key += t + ","
	}
	return key
}

// generateToolSettingsFile writes a settings file allowlisting req's
// required tools and returns its path, reusing a cached path for an
// identical tool set until the cache is cleared.
func generateToolSettingsFile(req domain.Request) (string, error) {
	key := toolPolicyKey(req.RequiredTools)

	toolPolicyMu.Lock()
	if path, ok := toolPolicyCache[key]; ok {
		toolPolicyMu.Unlock()
		return path, nil
	}
	toolPolicyMu.Unlock()

	f, err := os.CreateTemp("", "jinn-tool-settings-*.json")
	if err != nil {
		return "", fmt.Errorf("executor: create tool settings file: %w", err)
	}
	defer f.Close()

	settings := struct {
		AllowedTools []string `json:"allowedTools"`
	}{AllowedTools: req.RequiredTools}

	if err := json.NewEncoder(f).Encode(settings); err != nil {
		return "", fmt.Errorf("executor: write tool settings file: %w", err)
	}

	toolPolicyMu.Lock()
	toolPolicyCache[key] = f.Name()
	toolPolicyMu.Unlock()

	return f.Name(), nil
}

// clearToolPolicyCache drops every cached tool-settings path. Callers
// still own deleting the underlying files.
func clearToolPolicyCache() {
	toolPolicyMu.Lock()
	defer toolPolicyMu.Unlock()
	for k := range toolPolicyCache {
		delete(toolPolicyCache, k)
	}
}

// deleteToolSettingsFiles removes every file path currently cached,
// called once per Run's cleanup.
func deleteToolSettingsFiles() {
	toolPolicyMu.Lock()
	paths := make([]string, 0, len(toolPolicyCache))
	for _, p := range toolPolicyCache {
		paths = append(paths, p)
	}
	toolPolicyMu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
