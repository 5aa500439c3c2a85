package executor

import (
	"os"
	"strings"
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestBuildEnvironmentExcludesSecrets(t *testing.T) {
	t.Setenv("NODE_PRIVATE_KEY", "0xsecret")
	t.Setenv("JINN_JOB_VENTURE_CRED_ACME", "topsecret")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("PATH", os.Getenv("PATH"))

	req := domain.Request{ID: "req-1", WorkstreamID: "ws-1", JobName: "build"}
	env := BuildEnvironment(req, "http://127.0.0.1:9999", "bearer-token", "/tmp/telemetry.json")

	for _, kv := range env {
		if strings.Contains(kv, "NODE_PRIVATE_KEY") || strings.Contains(kv, "VENTURE_CRED_ACME") {
			t.Fatalf("secret leaked into subprocess environment: %q", kv)
		}
	}

	joined := strings.Join(env, "\n")
	if !strings.Contains(joined, "NODE_ENV=production") {
		t.Fatal("expected allowlisted NODE_ prefix variable to pass through")
	}
	if !strings.Contains(joined, "JINN_JOB_REQUEST_ID=req-1") {
		t.Fatal("expected injected job-context variable")
	}
	if !strings.Contains(joined, "JINN_SIGNING_PROXY_BEARER=bearer-token") {
		t.Fatal("expected injected signing-proxy bearer")
	}
}

func TestBuildEnvironmentDropsUnknownVariable(t *testing.T) {
	t.Setenv("SOME_RANDOM_THING", "value")

	req := domain.Request{ID: "req-1"}
	env := BuildEnvironment(req, "http://127.0.0.1:9999", "bearer", "/tmp/t.json")

	for _, kv := range env {
		if strings.HasPrefix(kv, "SOME_RANDOM_THING=") {
			t.Fatal("unlisted variable should not pass through")
		}
	}
}
