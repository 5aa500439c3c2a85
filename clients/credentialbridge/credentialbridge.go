// Package credentialbridge probes the credential bridge that gates which
// venture-scoped credentials this operator can obtain.
package credentialbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/httputil"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 64 << 10
)

// Client probes the credential bridge.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
}

// New builds a Client against the credential bridge.
func New(cfg Config) (*Client, error) {
	baseURL, _, err := httputil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("credentialbridge: %w", err)
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httputil.NewClient(httputil.ClientConfig{Timeout: cfg.Timeout, HTTPClient: cfg.HTTPClient}, defaultTimeout),
		maxBodyBytes: httputil.ResolveMaxBodyBytes(cfg.MaxBodyBytes, defaultMaxBodySize),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("credentialbridge: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credentialbridge: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return fmt.Errorf("credentialbridge: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("credentialbridge: request failed: %s - %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("credentialbridge: unmarshal response: %w", err)
	}
	return nil
}

// OperatorRegistration mirrors the bridge's operator registration record.
type OperatorRegistration struct {
	Address          string   `json:"address"`
	Trusted          bool     `json:"trusted"`
	AvailableVentures []string `json:"availableVentures"`
}

// Operator fetches the registration record for an operator address.
func (c *Client) Operator(ctx context.Context, address string) (*OperatorRegistration, error) {
	var reg OperatorRegistration
	if err := c.get(ctx, "/admin/operators/"+address, nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// AvailableCredentials is the set of venture-scoped credentials this
// operator can currently obtain, optionally scoped to one request.
type AvailableCredentials struct {
	Ventures []string `json:"ventures"`
}

// Has reports whether venture is in the available set.
func (a AvailableCredentials) Has(venture string) bool {
	for _, v := range a.Ventures {
		if v == venture {
			return true
		}
	}
	return false
}

// Probe queries the bridge's probe endpoint for the credentials
// obtainable for this operator, optionally scoped to requestID so the
// bridge can verify venture-scoped credentials for a specific candidate.
func (c *Client) Probe(ctx context.Context, operatorAddress, requestID string) (AvailableCredentials, error) {
	query := url.Values{"operator": {operatorAddress}}
	if requestID != "" {
		query.Set("requestId", requestID)
	}

	var creds AvailableCredentials
	if err := c.get(ctx, "/credentials/probe", query, &creds); err != nil {
		return AvailableCredentials{}, err
	}
	return creds, nil
}
