package claim

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinn-Network/jinn-worker/clients/claimservice"
	"github.com/Jinn-Network/jinn-worker/clients/credentialbridge"
	"github.com/Jinn-Network/jinn-worker/core/session"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New("claim", "error", "text")
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newClaimClient(t *testing.T, body string, status int) *claimservice.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	c, err := claimservice.New(claimservice.Config{BaseURL: server.URL, PrivateKey: testKey(t)})
	require.NoError(t, err)
	return c
}

func TestArbitrateHeartbeatSkipsClaim(t *testing.T) {
	s := session.New()
	defer s.Stop()
	a := New(nil, nil, s, nil, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "hb-1", JobName: domain.HeartbeatJobName})
	require.NoError(t, err)
	assert.Equal(t, VerdictHeartbeat, result.Verdict)
}

func TestArbitrateWinsClaim(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": false, "status": "IN_PROGRESS"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, func() string { return "0xmech" }, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1", Mech: "0xmech"})
	require.NoError(t, err)
	assert.Equal(t, VerdictWon, result.Verdict)
}

func TestArbitrateAlreadyClaimedSkips(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": true, "status": "IN_PROGRESS"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, nil, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, result.Verdict)
}

func TestArbitrateCompletedSkips(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": false, "status": "COMPLETED"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, nil, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, result.Verdict)
}

func TestArbitrateUnrecognizedStatusSkips(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": false, "status": "WEIRD"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, nil, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, result.Verdict)
}

func TestArbitratePreExecutionRefinementReleasesClaim(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": false, "status": "IN_PROGRESS"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, func() string { return "0xmine" }, nil, testLogger())

	future := time.Now().Add(time.Hour)
	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1", Mech: "0xtheirs", ResponseTimeout: &future})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, result.Verdict)
	assert.True(t, s.WasExecuted("req-1"))
}

func TestArbitrateProceedsWhenResponseTimeoutElapsed(t *testing.T) {
	cs := newClaimClient(t, `{"alreadyClaimed": false, "status": "IN_PROGRESS"}`, 0)
	s := session.New()
	defer s.Stop()
	a := New(cs, nil, s, func() string { return "0xmine" }, nil, testLogger())

	past := time.Now().Add(-time.Hour)
	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1", Mech: "0xtheirs", ResponseTimeout: &past})
	require.NoError(t, err)
	assert.Equal(t, VerdictWon, result.Verdict)
}

func TestArbitrateSkipsOnInsufficientCredentials(t *testing.T) {
	bridgeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ventures": []}`))
	}))
	defer bridgeServer.Close()
	creds, err := credentialbridge.New(credentialbridge.Config{BaseURL: bridgeServer.URL})
	require.NoError(t, err)

	s := session.New()
	defer s.Stop()
	a := New(nil, creds, s, nil, nil, testLogger())

	result, err := a.Arbitrate(context.Background(), domain.Request{ID: "req-1", RequiredTools: []string{"venture:acme"}})
	require.NoError(t, err)
	assert.Equal(t, VerdictSkip, result.Verdict)
}
