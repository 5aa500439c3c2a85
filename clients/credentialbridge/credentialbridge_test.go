package credentialbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/operators/0xabc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address": "0xabc", "trusted": true, "availableVentures": ["v1"]}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	reg, err := client.Operator(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, reg.Trusted)
	assert.Equal(t, []string{"v1"}, reg.AvailableVentures)
}

func TestProbeScopedByRequestID(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ventures": ["v1", "v2"]}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	creds, err := client.Probe(context.Background(), "0xabc", "42")
	require.NoError(t, err)
	assert.True(t, creds.Has("v1"))
	assert.False(t, creds.Has("v3"))
	assert.Contains(t, gotQuery, "requestId=42")
}

func TestProbeUnscoped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.RawQuery, "requestId")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ventures": []}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	creds, err := client.Probe(context.Background(), "0xabc", "")
	require.NoError(t, err)
	assert.Empty(t, creds.Ventures)
}

func TestOperatorRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Operator(context.Background(), "0xabc")
	assert.Error(t, err)
}
