package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSetsSessionToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "abc123"}`))
	})
	mux.HandleFunc("/api/v2/service/42", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background(), "secret"))
	require.NoError(t, client.StartService(context.Background(), "42"))
	assert.Equal(t, "Bearer abc123", gotAuth)
}

func TestGetFundingRequirements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/service/42/funding_requirements", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address": "0xabc", "requiredAmount": "100", "currentBalance": "10"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	reqs, err := client.GetFundingRequirements(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "100", reqs.RequiredAmount)
}

func TestWaitHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.WaitHealthy(ctx, 10*time.Millisecond))
}

func TestWaitHealthyTimesOut(t *testing.T) {
	client, err := New(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = client.WaitHealthy(ctx, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestTerminateAndWithdraw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/service/42/terminate_and_withdraw", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, client.TerminateAndWithdraw(context.Background(), "42"))
}
