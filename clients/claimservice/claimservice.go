// Package claimservice signs and submits claim requests to the claim
// service that arbitrates which worker gets to execute a given request.
// Requests are authenticated with an ERC-8128-style signed request: the agent EOA signs a digest over
// method, path, body hash, and timestamp, and the signature travels in
// headers rather than a bearer token — the claim service never learns
// the private key.
package claimservice

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Jinn-Network/jinn-worker/infrastructure/httputil"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxBodySize = 64 << 10

	headerAddress   = "X-Signer-Address"
	headerTimestamp = "X-Signed-Timestamp"
	headerSignature = "X-Signed-Signature"
)

// Client submits signed claim requests for one agent identity. The
// identity can be rebound in place (see Rebind) so a rotation need not
// tear down and redial the underlying HTTP client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64

	mu         sync.RWMutex
	privateKey *ecdsa.PrivateKey
	address    string
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	PrivateKey   *ecdsa.PrivateKey
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
}

// New builds a Client that signs every request with cfg.PrivateKey.
func New(cfg Config) (*Client, error) {
	baseURL, _, err := httputil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("claimservice: %w", err)
	}
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("claimservice: private key is required")
	}
	address := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey).Hex()

	return &Client{
		baseURL:      baseURL,
		httpClient:   httputil.NewClient(httputil.ClientConfig{Timeout: cfg.Timeout, HTTPClient: cfg.HTTPClient}, defaultTimeout),
		maxBodyBytes: httputil.ResolveMaxBodyBytes(cfg.MaxBodyBytes, defaultMaxBodySize),
		privateKey:   cfg.PrivateKey,
		address:      address,
	}, nil
}

// signedDigest hashes method, path, body, and timestamp into the message
// the agent key signs, following the personal-sign envelope go-ethereum's
// accounts package uses for off-chain signatures.
func signedDigest(method, path string, body []byte, timestamp int64) []byte {
	bodyHash := sha256.Sum256(body)
	message := fmt.Sprintf("%s %s %s %d", method, path, hex.EncodeToString(bodyHash[:]), timestamp)
	return accounts.TextHash([]byte(message))
}

func (c *Client) sign(method, path string, body []byte) (timestamp int64, signature string, err error) {
	c.mu.RLock()
	key := c.privateKey
	c.mu.RUnlock()

	timestamp = time.Now().Unix()
	digest := signedDigest(method, path, body, timestamp)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return 0, "", fmt.Errorf("claimservice: sign request: %w", err)
	}
	return timestamp, hexutilEncode(sig), nil
}

// Address returns the EOA address currently signing claim requests.
func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

// Rebind swaps the signing key under lock, used by the Rotator to flush
// the signed-request signer onto the new active service's agent key
// without redialing the claim service. Mirrors signingproxy.Proxy.Rebind.
func (c *Client) Rebind(privateKey *ecdsa.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.privateKey = privateKey
	c.address = crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
}

func hexutilEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ClaimResponse mirrors the claim service's response body.
type ClaimResponse struct {
	AlreadyClaimed bool   `json:"alreadyClaimed"`
	Status         string `json:"status"`
}

const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// Claim submits a signed claim for requestID.
func (c *Client) Claim(ctx context.Context, requestID string) (*ClaimResponse, error) {
	path := fmt.Sprintf("/requests/%s/claim", requestID)
	timestamp, signature, err := c.sign(http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("claimservice: build request: %w", err)
	}
	req.Header.Set(headerAddress, c.Address())
	req.Header.Set(headerTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(headerSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claimservice: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("claimservice: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claimservice: claim %s failed: %s - %s", requestID, resp.Status, strings.TrimSpace(string(raw)))
	}

	var claimResp ClaimResponse
	if err := json.Unmarshal(raw, &claimResp); err != nil {
		return nil, fmt.Errorf("claimservice: unmarshal response: %w", err)
	}
	return &claimResp, nil
}

// HealthResponse mirrors the claim service's health probe.
type HealthResponse struct {
	Status string `json:"status"`
	NodeID string `json:"nodeId"`
}

// Health polls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("claimservice: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claimservice: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("claimservice: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claimservice: health check failed: %s", resp.Status)
	}

	var healthResp HealthResponse
	if err := json.Unmarshal(raw, &healthResp); err != nil {
		return nil, fmt.Errorf("claimservice: unmarshal response: %w", err)
	}
	return &healthResp, nil
}
