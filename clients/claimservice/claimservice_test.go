package claimservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimSuccess(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	var gotAddress string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.Header.Get(headerAddress)
		assert.NotEmpty(t, r.Header.Get(headerSignature))
		assert.NotEmpty(t, r.Header.Get(headerTimestamp))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alreadyClaimed": false, "status": "IN_PROGRESS"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, PrivateKey: key})
	require.NoError(t, err)

	resp, err := client.Claim(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, resp.AlreadyClaimed)
	assert.Equal(t, StatusInProgress, resp.Status)
	assert.Equal(t, address, gotAddress)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alreadyClaimed": true, "status": "COMPLETED"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, PrivateKey: key})
	require.NoError(t, err)

	resp, err := client.Claim(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, resp.AlreadyClaimed)
	assert.Equal(t, StatusCompleted, resp.Status)
}

func TestHealth(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok", "nodeId": "node-1"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, PrivateKey: key})
	require.NoError(t, err)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "node-1", health.NodeID)
}

func TestNewRequiresPrivateKey(t *testing.T) {
	_, err := New(Config{BaseURL: "https://example.com"})
	assert.Error(t, err)
}
