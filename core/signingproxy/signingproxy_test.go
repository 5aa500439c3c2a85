package signingproxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := New(key, logging.New("signingproxy", "error", "text"))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestSignMessageRequiresBearer(t *testing.T) {
	p := newTestProxy(t)

	body, _ := json.Marshal(signMessageRequest{Message: "hello"})
	resp, err := http.Post(p.URL()+"/sign-message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignMessageWithBearer(t *testing.T) {
	p := newTestProxy(t)

	body, _ := json.Marshal(signMessageRequest{Message: "hello"})
	req, err := http.NewRequest(http.MethodPost, p.URL()+"/sign-message", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+p.Bearer())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out signResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Signature)
}

func TestSignTransactionRejectsBadHash(t *testing.T) {
	p := newTestProxy(t)

	body, _ := json.Marshal(signTransactionRequest{UnsignedTxHash: "not-hex"})
	req, err := http.NewRequest(http.MethodPost, p.URL()+"/sign-transaction", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+p.Bearer())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProxyAddressMatchesKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := New(key, logging.New("signingproxy", "error", "text"))
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), p.Address())
}

func TestNewRequiresPrivateKey(t *testing.T) {
	_, err := New(nil, logging.New("signingproxy", "error", "text"))
	assert.Error(t, err)
}
