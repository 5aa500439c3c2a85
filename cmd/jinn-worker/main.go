// Package main is the worker core's process entry point. It loads
// configuration and on-disk service records, wires every collaborator
// client and on-chain contract binding, assembles the main loop, and
// runs it to completion. Thin by design: CLI
// argument parsing beyond the worker's own env-driven config is out of
// scope.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jinn-Network/jinn-worker/clients/claimservice"
	"github.com/Jinn-Network/jinn-worker/clients/credentialbridge"
	"github.com/Jinn-Network/jinn-worker/clients/indexer"
	"github.com/Jinn-Network/jinn-worker/clients/middleware"
	"github.com/Jinn-Network/jinn-worker/core/claim"
	"github.com/Jinn-Network/jinn-worker/core/cycle"
	"github.com/Jinn-Network/jinn-worker/core/deliverer"
	"github.com/Jinn-Network/jinn-worker/core/discovery"
	"github.com/Jinn-Network/jinn-worker/core/eligibility"
	"github.com/Jinn-Network/jinn-worker/core/executor"
	"github.com/Jinn-Network/jinn-worker/core/maintenance"
	"github.com/Jinn-Network/jinn-worker/core/rotator"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/core/signingproxy"
	"github.com/Jinn-Network/jinn-worker/core/staking"
	"github.com/Jinn-Network/jinn-worker/core/worker"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/chain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/keystore"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
	"github.com/Jinn-Network/jinn-worker/infrastructure/resilience"
	"github.com/Jinn-Network/jinn-worker/infrastructure/servicerecord"
)

func main() {
	logger := logging.NewFromEnv("jinn-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, state, err := build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize worker")
	}
	defer state.Proxy.Stop()

	exitCode, report := w.Run(ctx)

	if exitCode == worker.ExitInterrupted {
		writeShutdownReport(report)
	}
	os.Exit(exitCode)
}

// build wires every client, contract binding, and phase component into a
// ready-to-run Worker. Split out of main so the dependency graph is a
// single readable function instead of being buried in init().
func build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*worker.Worker, *worker.WorkerState, error) {
	records, err := loadServiceRecords(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load service records: %w", err)
	}
	primary := records[0]

	chainClient, err := chain.NewClient(ctx, chain.Config{
		RPCURL:  cfg.ChainRPCURL,
		ChainID: cfg.ChainID,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial chain RPC: %w", err)
	}

	marketplace := chain.NewMarketplace(chainClient, cfg.MarketplaceContract)
	stakingAbi := chain.NewStaking(chainClient, cfg.StakingContract)
	var token *chain.Token
	if cfg.TokenContract != "" {
		token = chain.NewToken(chainClient, cfg.TokenContract)
	}

	agentKeyHex, err := decryptAgentKey(primary, cfg.KeystorePassphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt agent key for %s: %w", primary.ConfigID, err)
	}
	agentKey, err := crypto.HexToECDSA(trimHexPrefix(agentKeyHex))
	if err != nil {
		return nil, nil, fmt.Errorf("parse agent key for %s: %w", primary.ConfigID, err)
	}

	proxy, err := signingproxy.New(agentKey, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build signing proxy: %w", err)
	}
	if err := proxy.Start(); err != nil {
		return nil, nil, fmt.Errorf("start signing proxy: %w", err)
	}

	idx, err := indexer.New(indexer.Config{BaseURL: cfg.IndexerURL, HTTPClient: breakerClient(logger)})
	if err != nil {
		return nil, nil, fmt.Errorf("build indexer client: %w", err)
	}
	claimSvc, err := claimservice.New(claimservice.Config{
		BaseURL:    cfg.ClaimServiceURL,
		PrivateKey: agentKey,
		HTTPClient: breakerClient(logger),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build claim service client: %w", err)
	}
	credentials, err := credentialbridge.New(credentialbridge.Config{BaseURL: cfg.CredentialBridgeURL, HTTPClient: breakerClient(logger)})
	if err != nil {
		return nil, nil, fmt.Errorf("build credential bridge client: %w", err)
	}
	mw, err := middleware.New(middleware.Config{BaseURL: cfg.MiddlewareURL, HTTPClient: breakerClient(logger)})
	if err != nil {
		return nil, nil, fmt.Errorf("build middleware client: %w", err)
	}

	sessionState := session.New()
	activeCtx := domain.NewActiveServiceContext(primary)
	activeSvc := func() domain.ServiceRecord { record, _ := activeCtx.Snapshot(); return record }
	activeMech := func() string { record, _ := activeCtx.Snapshot(); return record.MechAddress }
	services := func() []domain.ServiceRecord { return records }

	m := metrics.Init()

	mechResolver := discovery.NewMechResolver(cfg, stakingAbi)
	disc := discovery.New(idx, marketplace, mechResolver, cfg, logging.New("discovery", cfg.LogLevel, cfg.LogFormat))
	deliv := deliverer.New(chainClient, marketplace, sessionState, activeSvc, cfg, m, logging.New("deliverer", cfg.LogLevel, cfg.LogFormat))
	elig := eligibility.New(idx, credentials, deliv, sessionState, cfg, logging.New("eligibility", cfg.LogLevel, cfg.LogFormat))
	arb := claim.New(claimSvc, credentials, sessionState, activeMech, m, logging.New("claim", cfg.LogLevel, cfg.LogFormat))
	exec := executor.New(cfg, logging.New("executor", cfg.LogLevel, cfg.LogFormat), m)
	maint := maintenance.New(cfg, logging.New("maintenance", cfg.LogLevel, cfg.LogFormat), m, sessionState, mw, token)
	stakingCoordinator := staking.New(stakingAbi, marketplace, chainClient, idx, mw, activeSvc, services, cfg, m, logging.New("staking", cfg.LogLevel, cfg.LogFormat))

	var rot *rotator.Rotator
	if cfg.MultiService {
		rot = rotator.New(stakingCoordinator, stakingAbi, activeCtx, records, claimSvc, elig, cfg, m, logging.New("rotator", cfg.LogLevel, cfg.LogFormat))
	}

	cycleCtrl := cycle.New(cfg, logging.New("cycle", cfg.LogLevel, cfg.LogFormat))
	if err := cycleCtrl.WatchStopFile(); err != nil {
		logger.WithError(err).Warn("failed to start stop-file watch, falling back to polling it every cycle")
	}

	go serveMetrics(cfg.MetricsPort, logger)

	state := &worker.WorkerState{Session: sessionState, ActiveCtx: activeCtx, Proxy: proxy}
	w := worker.New(cfg, logger, m, state, cycleCtrl, maint, disc, elig, arb, exec, deliv, stakingCoordinator, rot)
	return w, state, nil
}

func loadServiceRecords(cfg *config.Config) ([]domain.ServiceRecord, error) {
	if cfg.MultiService {
		ids, err := servicerecord.LoadOverlay(cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("multi-service mode requires a non-empty services.yaml overlay")
		}
		records, errs := servicerecord.LoadAll(cfg.WorkDir, ids)
		if len(records) == 0 {
			return nil, fmt.Errorf("no service records could be loaded: %v", errs)
		}
		return records, nil
	}

	if cfg.ConfigID == "" {
		return nil, fmt.Errorf("CONFIG_ID is required outside multi-service mode")
	}
	record, err := servicerecord.Load(cfg.WorkDir, cfg.ConfigID)
	if err != nil {
		return nil, err
	}
	return []domain.ServiceRecord{record}, nil
}

func breakerClient(logger *logging.Logger) *http.Client {
	transport := resilience.NewTransport(resilience.DefaultExternalCBConfig(logger), nil)
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func serveMetrics(port int, logger *logging.Logger) {
	if port <= 0 {
		return
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	addr := ":" + strconv.Itoa(port)
	if err := http.ListenAndServe(addr, router); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Warn("metrics server stopped")
	}
}

func writeShutdownReport(report worker.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

func decryptAgentKey(record domain.ServiceRecord, passphrase string) (string, error) {
	ks, err := keystore.Load(record.AgentKeystorePath)
	if err != nil {
		return "", fmt.Errorf("load agent keystore: %w", err)
	}
	return keystore.Decrypt(ks, passphrase)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
