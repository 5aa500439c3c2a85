// Package config provides environment-aware configuration loading for the
// worker core, using small typed getEnv/getIntEnv/getBoolEnv helpers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MechFilterMode selects how Discovery resolves which mech addresses to
// query for.
type MechFilterMode string

const (
	MechFilterSingle  MechFilterMode = "single"
	MechFilterList    MechFilterMode = "list"
	MechFilterStaking MechFilterMode = "staking"
	MechFilterAny     MechFilterMode = "any"
)

// Config holds every environment-driven setting the worker core reads
// plus the
// ambient logging/metrics/chain settings SPEC_FULL.md adds.
type Config struct {
	// Cycle controller
	StopFilePath      string
	MaxRuns           int
	MaxCycles         int
	MaxStuckCycles    int
	BasePollInterval  time.Duration
	MaxPollInterval   time.Duration
	PollFactor        float64
	EarningWindow     string // "HH:MM-HH:MM" local time, empty = always in window
	EarningWindowCap  int    // max jobs per window, 0 = unlimited

	// Discovery
	MechFilterMode      MechFilterMode
	MechList            []string
	StakingContract     string
	MarketplaceContract string
	TokenContract       string // empty disables the fund top-up scan
	DiscoveryLimit      int
	WorkstreamFilter    []string
	VentureFilter       []string
	TemplateMarker      string
	ServiceRegistryURL  string
	TemplateAllowList   []string

	// Eligibility
	DependencyRedispatchEnabled bool
	DependencyAutoFailEnabled   bool
	StaleDependencyThreshold    time.Duration
	MissingDependencyThreshold  time.Duration

	// Multi-service / rotation
	MultiService bool
	ConfigID     string // single-service mode: which config id under .operate/services to act as

	// Staking coordinator subcycles
	CheckpointEveryCycles int
	HeartbeatEveryCycles  int
	FundCheckEveryCycles  int
	WorkerIDSuffix        string // leader determined by this suffix
	ActivityTargetCount   int           // requests required per epoch to earn rewards
	EpochGateCacheTTL     time.Duration
	HeartbeatResponseTimeout time.Duration
	RestakeCooldown       time.Duration

	// Cleanup
	CleanupEveryCycles int

	// Chain / RPC
	ChainRPCURL string
	ChainID     uint64

	// Collaborator endpoints
	IndexerURL          string
	ClaimServiceURL      string
	CredentialBridgeURL  string
	MiddlewareURL        string

	// Worker identity / operator
	WorkDir           string
	OperatorAddress   string
	OperatorCapabilities []string

	// Executor
	LLMModel              string
	MaxStdoutBytes        int64
	MaxChunkBytes         int64
	RepeatLineThreshold   int
	RepeatChunkWindow     int
	SubprocessTimeout     time.Duration
	TelemetryWaitTimeout  time.Duration
	MaxTelemetryBytes     int64
	BrowserToolsEnabled   bool
	GeminiHome            string
	RuntimeHome           string

	// Deliverer
	DeliveryConfirmTimeout time.Duration
	PostDeliveryQuotaDelay time.Duration
	KeystorePassphrase     string

	// Logging / metrics (ambient)
	LogLevel    string
	LogFormat   string
	MetricsPort int
}

// Load reads configuration from the environment, applying the defaults
// used by the cycle controller, discovery, and staking coordinator.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.StopFilePath = getEnv("STOP_FILE_PATH", fmt.Sprintf("/tmp/jinn-stop-cycle-%s", getEnv("WORKER_ID_SUFFIX", "0")))
	c.MaxRuns = getIntEnv("MAX_RUNS", 0)
	c.MaxCycles = getIntEnv("MAX_CYCLES", 0)
	c.MaxStuckCycles = getIntEnv("MAX_STUCK_CYCLES", 10)

	base := getEnv("POLL_BASE_INTERVAL", "30s")
	d, err := time.ParseDuration(base)
	if err != nil {
		return fmt.Errorf("invalid POLL_BASE_INTERVAL: %w", err)
	}
	c.BasePollInterval = d

	max := getEnv("POLL_MAX_INTERVAL", "5m")
	d, err = time.ParseDuration(max)
	if err != nil {
		return fmt.Errorf("invalid POLL_MAX_INTERVAL: %w", err)
	}
	c.MaxPollInterval = d

	c.PollFactor = getFloatEnv("POLL_FACTOR", 1.5)
	c.EarningWindow = getEnv("EARNING_WINDOW", "")
	c.EarningWindowCap = getIntEnv("EARNING_WINDOW_MAX_JOBS", 0)

	c.MechFilterMode = MechFilterMode(getEnv("MECH_FILTER_MODE", string(MechFilterSingle)))
	c.MechList = splitNonEmpty(getEnv("MECH_LIST", ""))
	c.StakingContract = getEnv("STAKING_CONTRACT", "")
	c.MarketplaceContract = getEnv("MARKETPLACE_CONTRACT", "")
	c.TokenContract = getEnv("TOKEN_CONTRACT", "")
	c.DiscoveryLimit = getIntEnv("DISCOVERY_LIMIT", 50)
	c.WorkstreamFilter = splitNonEmpty(getEnv("WORKSTREAM_FILTER", ""))
	c.VentureFilter = splitNonEmpty(getEnv("VENTURE_FILTER", ""))
	c.TemplateMarker = getEnv("TEMPLATE_MARKER", "(via x402)")
	c.ServiceRegistryURL = getEnv("SERVICE_REGISTRY_URL", "")
	c.TemplateAllowList = splitNonEmpty(getEnv("TEMPLATE_ALLOW_LIST", ""))

	c.DependencyRedispatchEnabled = getBoolEnv("DEPENDENCY_REDISPATCH_ENABLED", true)
	c.DependencyAutoFailEnabled = getBoolEnv("DEPENDENCY_AUTOFAIL_ENABLED", true)
	c.StaleDependencyThreshold = getDurationEnv("STALE_DEPENDENCY_THRESHOLD", 2*time.Hour)
	c.MissingDependencyThreshold = getDurationEnv("MISSING_DEPENDENCY_THRESHOLD", 2*time.Hour)

	c.MultiService = getBoolEnv("MULTI_SERVICE", false)
	c.ConfigID = getEnv("CONFIG_ID", "")

	c.CheckpointEveryCycles = getIntEnv("CHECKPOINT_EVERY_CYCLES", 60)
	c.HeartbeatEveryCycles = getIntEnv("HEARTBEAT_EVERY_CYCLES", 16)
	c.FundCheckEveryCycles = getIntEnv("FUND_CHECK_EVERY_CYCLES", 120)
	c.WorkerIDSuffix = getEnv("WORKER_ID_SUFFIX", "0")
	c.ActivityTargetCount = getIntEnv("ACTIVITY_TARGET_COUNT", 60)
	c.EpochGateCacheTTL = getDurationEnv("EPOCH_GATE_CACHE_TTL", 3*time.Minute)
	c.HeartbeatResponseTimeout = getDurationEnv("HEARTBEAT_RESPONSE_TIMEOUT", time.Hour)
	c.RestakeCooldown = getDurationEnv("RESTAKE_COOLDOWN", time.Hour)

	c.CleanupEveryCycles = getIntEnv("CLEANUP_EVERY_CYCLES", 50)

	c.ChainRPCURL = getEnv("CHAIN_RPC_URL", "")
	c.ChainID = uint64(getIntEnv("CHAIN_ID", 100))

	c.IndexerURL = getEnv("INDEXER_URL", "")
	c.ClaimServiceURL = getEnv("CLAIM_SERVICE_URL", "")
	c.CredentialBridgeURL = getEnv("CREDENTIAL_BRIDGE_URL", "")
	c.MiddlewareURL = getEnv("MIDDLEWARE_URL", "http://localhost:8000")

	c.WorkDir = getEnv("WORK_DIR", ".")
	c.OperatorAddress = getEnv("OPERATOR_ADDRESS", "")
	c.OperatorCapabilities = splitNonEmpty(getEnv("OPERATOR_CAPABILITIES", ""))

	c.LLMModel = getEnv("LLM_MODEL", "gemini-2.0-flash")
	c.MaxStdoutBytes = int64(getIntEnv("EXECUTOR_MAX_STDOUT_BYTES", 5<<20))
	c.MaxChunkBytes = int64(getIntEnv("EXECUTOR_MAX_CHUNK_BYTES", 100<<10))
	c.RepeatLineThreshold = getIntEnv("EXECUTOR_REPEAT_LINE_THRESHOLD", 10)
	c.RepeatChunkWindow = getIntEnv("EXECUTOR_REPEAT_CHUNK_WINDOW", 10)
	c.SubprocessTimeout = getDurationEnv("EXECUTOR_TIMEOUT", 15*time.Minute)
	c.TelemetryWaitTimeout = getDurationEnv("EXECUTOR_TELEMETRY_WAIT", 10*time.Second)
	c.MaxTelemetryBytes = int64(getIntEnv("EXECUTOR_MAX_TELEMETRY_BYTES", 50<<20))
	c.BrowserToolsEnabled = getBoolEnv("EXECUTOR_BROWSER_TOOLS_ENABLED", false)
	c.GeminiHome = getEnv("GEMINI_HOME", os.Getenv("HOME")+"/.gemini")
	c.RuntimeHome = getEnv("EXECUTOR_RUNTIME_HOME", "/tmp/.gemini-worker")

	c.DeliveryConfirmTimeout = getDurationEnv("DELIVERY_CONFIRM_TIMEOUT", 10*time.Minute)
	c.PostDeliveryQuotaDelay = getDurationEnv("POST_DELIVERY_QUOTA_DELAY", 0)
	c.KeystorePassphrase = getEnv("KEYSTORE_PASSPHRASE", "")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	return nil
}

// IsLeader reports whether this worker instance is the one designated to
// submit heartbeats.
func (c *Config) IsLeader() bool {
	return c.WorkerIDSuffix == "0" || c.WorkerIDSuffix == "leader"
}

// TemplatePickupEnabled reports whether Discovery should also query for
// template requests.
func (c *Config) TemplatePickupEnabled() bool {
	return c.ServiceRegistryURL != "" || len(c.TemplateAllowList) > 0
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			return fv
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if dv, err := time.ParseDuration(v); err == nil {
			return dv
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
