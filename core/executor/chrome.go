package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

const devToolsWaitTimeout = 10 * time.Second

// devToolsMarker is the stderr line Chrome prints once its remote
// debugging listener is ready.
var devToolsMarker = regexp.MustCompile(`DevTools listening on ws://127\.0\.0\.1:(\d+)`)

// chromeProcess tracks the headless Chrome pre-launched for browser-MCP
// tools, torn down on every exit path from Run.
type chromeProcess struct {
	cmd         *exec.Cmd
	userDataDir string
	port        int
}

// launchChrome starts headless Chrome with a random remote-debugging
// port and a temporary user-data directory, before the subprocess enters
// any OS-level sandbox. It blocks
// until the DevTools listener is up or ctx is done.
func launchChrome(ctx context.Context, logger *logging.Logger) (*chromeProcess, error) {
	userDataDir, err := os.MkdirTemp("", "jinn-chrome-")
	if err != nil {
		return nil, fmt.Errorf("executor: create chrome user-data dir: %w", err)
	}

	binary, err := exec.LookPath("chromium")
	if err != nil {
		binary, err = exec.LookPath("google-chrome")
		if err != nil {
			_ = os.RemoveAll(userDataDir)
			return nil, fmt.Errorf("executor: no chrome binary on PATH: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, binary,
		"--headless=new",
		"--remote-debugging-port=0",
		"--user-data-dir="+userDataDir,
		"--no-sandbox",
		"--disable-gpu",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("executor: chrome stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("executor: start chrome: %w", err)
	}

	port, err := waitForDevTools(stderr, devToolsWaitTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = os.RemoveAll(userDataDir)
		return nil, err
	}

	logger.WithField("port", port).Info("headless chrome ready")
	return &chromeProcess{cmd: cmd, userDataDir: userDataDir, port: port}, nil
}

// waitForDevTools scans r's lines for devToolsMarker, returning the
// parsed port. Abandons the scan once timeout elapses so a
// never-listening Chrome binary can't hang the Executor indefinitely.
func waitForDevTools(r io.Reader, timeout time.Duration) (int, error) {
	type result struct {
		port int
		err  error
	}
	done := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if m := devToolsMarker.FindStringSubmatch(scanner.Text()); m != nil {
				port, err := strconv.Atoi(m[1])
				done <- result{port: port, err: err}
				return
			}
		}
		done <- result{err: fmt.Errorf("executor: chrome stderr closed before DevTools listener appeared")}
	}()

	select {
	case res := <-done:
		return res.port, res.err
	case <-time.After(timeout):
		return 0, fmt.Errorf("executor: timed out waiting for chrome DevTools listener")
	}
}

// stop kills Chrome and removes its user-data directory on any exit path.
func (c *chromeProcess) stop() {
	if c == nil {
		return
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	if c.userDataDir != "" {
		_ = os.RemoveAll(c.userDataDir)
	}
}

// debuggingURL is the 127.0.0.1:<port> address the browser-MCP extension
// config is patched to connect to.
func (c *chromeProcess) debuggingURL() string {
	return fmt.Sprintf("127.0.0.1:%d", c.port)
}

// patchBrowserExtensionConfig rewrites the browser-MCP extension's config
// file to point at debuggingURL.
func patchBrowserExtensionConfig(runtimeHome, debuggingURL string) error {
	configPath := filepath.Join(runtimeHome, "extensions", "browser-mcp", "config.json")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("executor: create extension config dir: %w", err)
	}
	content := fmt.Sprintf(`{"debuggingAddress":"%s"}`, debuggingURL)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("executor: write extension config: %w", err)
	}
	return nil
}

// ensureExtensions installs required LLM-tool extensions into
// runtimeHome, skipping any already present, and copies OAuth
// credentials from geminiHome so the subprocess finds them.
func ensureExtensions(geminiHome, runtimeHome string, extensions []string) error {
	extDir := filepath.Join(runtimeHome, "extensions")
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		return fmt.Errorf("executor: create extensions dir: %w", err)
	}

	for _, ext := range extensions {
		dest := filepath.Join(extDir, ext)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("executor: install extension %s: %w", ext, err)
		}
	}

	credsSrc := filepath.Join(geminiHome, "oauth_creds.json")
	if _, err := os.Stat(credsSrc); err != nil {
		return nil
	}
	credsDest := filepath.Join(runtimeHome, "oauth_creds.json")
	data, err := os.ReadFile(credsSrc)
	if err != nil {
		return fmt.Errorf("executor: read oauth creds: %w", err)
	}
	if err := os.WriteFile(credsDest, data, 0o600); err != nil {
		return fmt.Errorf("executor: copy oauth creds: %w", err)
	}
	return nil
}
