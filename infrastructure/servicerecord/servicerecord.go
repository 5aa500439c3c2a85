// Package servicerecord loads the on-disk ServiceRecord and, in
// multi-service mode, the operator-facing services.yaml overlay that
// lists which config ids are active and in what rotation priority
// order (SPEC_FULL.md supplemented feature "Service-record YAML
// overlay"). Both are read once at startup; the worker core never
// mutates either file.
package servicerecord

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// Load reads one service's config.json from
// <workDir>/.operate/services/<configId>/config.json.
func Load(workDir, configID string) (domain.ServiceRecord, error) {
	path := configPath(workDir, configID)
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ServiceRecord{}, fmt.Errorf("servicerecord: read %s: %w", path, err)
	}

	var record domain.ServiceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.ServiceRecord{}, fmt.Errorf("servicerecord: parse %s: %w", path, err)
	}
	if record.AgentKeystorePath == "" {
		record.AgentKeystorePath = filepath.Join(workDir, ".operate", "services", configID, "keys", "agent.json")
	}
	return record, nil
}

// overlayEntry is one services.yaml line item.
type overlayEntry struct {
	ConfigID string `yaml:"configId"`
	Priority int    `yaml:"priority"`
}

type overlay struct {
	Services []overlayEntry `yaml:"services"`
}

// LoadOverlay reads <workDir>/services.yaml and returns the listed
// config ids ordered by ascending priority (lowest number rotates to
// first). A missing file is not an error — it just means multi-service
// mode has nothing to overlay and the caller falls back to whatever
// single config id it already has.
func LoadOverlay(workDir string) ([]string, error) {
	path := filepath.Join(workDir, "services.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("servicerecord: read %s: %w", path, err)
	}

	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("servicerecord: parse %s: %w", path, err)
	}

	sort.SliceStable(ov.Services, func(i, j int) bool {
		return ov.Services[i].Priority < ov.Services[j].Priority
	})

	ids := make([]string, 0, len(ov.Services))
	for _, e := range ov.Services {
		ids = append(ids, e.ConfigID)
	}
	return ids, nil
}

// LoadAll loads every service record named by LoadOverlay, in the same
// order, skipping (and logging via the returned error slice) any config
// id whose config.json cannot be read rather than failing the whole
// startup over one damaged service directory.
func LoadAll(workDir string, configIDs []string) ([]domain.ServiceRecord, []error) {
	var records []domain.ServiceRecord
	var errs []error
	for _, id := range configIDs {
		record, err := Load(workDir, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	return records, errs
}

func configPath(workDir, configID string) string {
	return filepath.Join(workDir, ".operate", "services", configID, "config.json")
}
