// Package executor runs one claimed job to completion or to a bounded
// failure: it constructs a locked-down subprocess environment, optionally
// pre-launches headless Chrome for browser-MCP tools, spawns the LLM
// tool, polices its stdout for runaway-loop patterns, extracts status
// updates as it streams, parses the telemetry file once the subprocess
// exits, and always runs cleanup
// regardless of how the run ended.
//
// The subprocess-management shape (CommandContext, piped stdout/stderr,
// explicit cleanup on every exit path) follows the usual pattern for
// CLI-driven external tools: spawn, stream, and guarantee teardown.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
	"github.com/Jinn-Network/jinn-worker/infrastructure/metrics"
)

// StatusCallback is invoked every time a status-update pattern fires in
// the subprocess's stdout stream.
type StatusCallback func(status string)

// SigningProxy is the subset of core/signingproxy.Proxy the Executor
// needs to inject into the subprocess environment.
type SigningProxy interface {
	URL() string
	Bearer() string
}

// Executor runs one job per Run call.
type Executor struct {
	cfg         *config.Config
	logger      *logging.Logger
	metrics     *metrics.Metrics
	commandName string // overridable in tests; defaults to "gemini"
}

// New builds an Executor.
func New(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *Executor {
	return &Executor{cfg: cfg, logger: logger, metrics: m, commandName: "gemini"}
}

func requiresBrowser(req domain.Request) bool {
	for _, tool := range req.RequiredTools {
		if tool == "browser" {
			return true
		}
	}
	return false
}

// Run spawns the LLM subprocess for req and drives it to completion,
// returning a domain.JobResult whose Err field is non-nil only when the
// run produced no usable payload at all.
func (e *Executor) Run(ctx context.Context, req domain.Request, proxy SigningProxy, statusCb StatusCallback) domain.JobResult {
	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ExecutorDuration.Observe(time.Since(started).Seconds())
		}
	}()

	telemetryFile, err := os.CreateTemp("", "jinn-telemetry-*.json")
	if err != nil {
		return e.failResult(req, domain.ErrorSystemError, fmt.Sprintf("create telemetry file: %v", err))
	}
	telemetryPath := telemetryFile.Name()
	_ = telemetryFile.Close()

	var chrome *chromeProcess
	if e.cfg.BrowserToolsEnabled && requiresBrowser(req) {
		chrome, err = launchChrome(ctx, e.logger)
		if err != nil {
			e.logger.WithError(err).Warn("chrome pre-launch failed, continuing without browser tools")
		} else if err := patchBrowserExtensionConfig(e.cfg.RuntimeHome, chrome.debuggingURL()); err != nil {
			e.logger.WithError(err).Warn("failed to patch browser extension config")
		}
	}

	defer e.cleanup(chrome)

	if err := ensureExtensions(e.cfg.GeminiHome, e.cfg.RuntimeHome, []string{"browser-mcp", "shell-mcp"}); err != nil {
		e.logger.WithError(err).Warn("extension setup incomplete")
	}

	toolSettingsPath, err := generateToolSettingsFile(req)
	if err != nil {
		e.logger.WithError(err).Warn("failed generating tool settings file")
	}
	defer deleteToolSettingsFiles()

	env := BuildEnvironment(req, proxy.URL(), proxy.Bearer(), telemetryPath)
	cmd := e.buildCommand(ctx, req, env, toolSettingsPath)

	execResult, runErr := e.stream(cmd, statusCb)
	if runErr != nil {
		_ = os.Remove(telemetryPath)
		return e.failResult(req, domain.ErrorSystemError, runErr.Error())
	}

	telemetry, _ := e.readTelemetry(telemetryPath)
	_ = os.Remove(telemetryPath)

	jobErr := classify(execResult.terminationReason, execResult.timedOut, execResult.exitCode, execResult.stderrTail)
	if jobErr == nil && execResult.exitCode != 0 && toolNotFoundPattern.MatchString(execResult.stderrTail) {
		e.logger.Warn("subprocess reported a tool not found in registry, treating exit as zero")
		execResult.exitCode = 0
	}
	if jobErr != nil {
		jobErr.Telemetry = telemetry
	}

	result := domain.JobResult{
		RequestID:         req.ID,
		Output:            execResult.output,
		LastStatus:        execResult.lastStatus,
		Telemetry:         telemetry,
		ExitCode:          execResult.exitCode,
		TerminationReason: string(execResult.terminationReason),
		Err:               jobErr,
	}

	if jobErr != nil && e.metrics != nil {
		e.metrics.ExecutorTerminations.WithLabelValues(string(jobErr.Kind)).Inc()
	}

	return result
}

func (e *Executor) buildCommand(ctx context.Context, req domain.Request, env []string, toolSettingsPath string) *exec.Cmd {
	args := []string{
		"--model", e.cfg.LLMModel,
		"--include-directories", e.cfg.WorkDir,
		"--yolo",
	}
	if toolSettingsPath != "" {
		args = append(args, "--settings", toolSettingsPath)
	}

	prompt := req.JobName
	const inlinePromptLimit = 100 << 10
	useStdin := len(prompt) > inlinePromptLimit

	if !useStdin {
		args = append(args, "--prompt", prompt)
	} else {
		// Sandboxing and stdin can conflict, so the OS-level sandbox is
		// disabled whenever the prompt is large enough to go via stdin.
		args = append(args, "--no-sandbox")
	}

	cmd := exec.CommandContext(ctx, e.commandName, args...)
	cmd.Env = env
	cmd.Dir = e.cfg.WorkDir
	if useStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}
	return cmd
}

type runResult struct {
	output            string
	lastStatus        string
	exitCode          int
	timedOut          bool
	terminationReason TerminationReason
	stderrTail        string
}

// stream spawns cmd, reads its stdout line-by-line through a loop guard
// and the status extractor, and enforces the hard wall-clock timeout.
func (e *Executor) stream(cmd *exec.Cmd, statusCb StatusCallback) (runResult, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return runResult{}, fmt.Errorf("executor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return runResult{}, fmt.Errorf("executor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return runResult{}, fmt.Errorf("executor: start subprocess: %w", err)
	}

	guard := newLoopGuard(e.cfg.MaxStdoutBytes, e.cfg.MaxChunkBytes, e.cfg.RepeatLineThreshold, e.cfg.RepeatChunkWindow)
	extractor := &statusExtractor{}

	var output strings.Builder
	var lastStatus string
	terminationCh := make(chan TerminationReason, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			output.WriteString(line)
			output.WriteByte('\n')

			if reason := guard.observeChunk([]byte(line)); reason != ReasonNone {
				terminationCh <- reason
				return
			}
			if reason := guard.observeLine(line); reason != ReasonNone {
				terminationCh <- reason
				return
			}
			if status, ok := extractor.Feed(line); ok {
				lastStatus = status
				if statusCb != nil {
					statusCb(status)
				}
			}
		}
		terminationCh <- ReasonNone
	}()

	var stderrTail strings.Builder
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				stderrTail.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(e.cfg.SubprocessTimeout)
	defer timer.Stop()

	var reason TerminationReason
	timedOut := false

	select {
	case reason = <-terminationCh:
		if reason != ReasonNone {
			_ = cmd.Process.Kill()
		}
	case <-timer.C:
		timedOut = true
		reason = ReasonWallClockTimeout
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if reason != ReasonNone && exitCode == 0 {
		exitCode = 1
	}

	return runResult{
		output:            output.String(),
		lastStatus:        lastStatus,
		exitCode:          exitCode,
		timedOut:          timedOut,
		terminationReason: reason,
		stderrTail:        stderrTail.String(),
	}, nil
}

// readTelemetry waits up to cfg.TelemetryWaitTimeout for the file to
// appear and be non-empty, then parses it, capped at MaxTelemetryBytes.
func (e *Executor) readTelemetry(path string) (*domain.Telemetry, []domain.TelemetryEvent) {
	deadline := time.Now().Add(e.cfg.TelemetryWaitTimeout)
	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	f, err := os.Open(path)
	if err != nil {
		return &domain.Telemetry{}, nil
	}
	defer f.Close()

	limited := io.LimitReader(f, e.cfg.MaxTelemetryBytes)
	buf, err := io.ReadAll(limited)
	if err != nil {
		e.logger.WithError(err).Warn("failed reading telemetry file")
		return &domain.Telemetry{}, nil
	}

	return ParseTelemetry(buf)
}

// cleanup always runs regardless of how Run ended: kill Chrome if
// launched and clear the tool policy cache. The generated tool settings
// files are deleted by Run's separate deferred deleteToolSettingsFiles
// call, which runs just before this one.
func (e *Executor) cleanup(chrome *chromeProcess) {
	chrome.stop()
	clearToolPolicyCache()
}

func (e *Executor) failResult(req domain.Request, kind domain.ErrorKind, message string) domain.JobResult {
	return domain.JobResult{
		RequestID: req.ID,
		Err:       &domain.JobError{Kind: kind, Message: message},
	}
}
