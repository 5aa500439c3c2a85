// Package middleware talks to the locally spawned middleware daemon that
// actually executes staking and multisig transactions on the Deliverer's
// and Staking coordinator's behalf. The daemon itself is out of process
// scope; this package is only the HTTP client half.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Jinn-Network/jinn-worker/infrastructure/httputil"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 1 << 20
)

// Client talks to one locally spawned middleware daemon instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
	sessionToken string
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
}

// New builds a Client against a middleware daemon's local HTTPS listener.
func New(cfg Config) (*Client, error) {
	baseURL, _, err := httputil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("middleware: %w", err)
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httputil.NewClient(httputil.ClientConfig{Timeout: cfg.Timeout, HTTPClient: cfg.HTTPClient}, defaultTimeout),
		maxBodyBytes: httputil.ResolveMaxBodyBytes(cfg.MaxBodyBytes, defaultMaxBodySize),
	}, nil
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("middleware: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("middleware: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("middleware: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return fmt.Errorf("middleware: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("middleware: %s %s failed: %s - %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("middleware: unmarshal response: %w", err)
	}
	return nil
}

// Login authenticates against the daemon and caches the session token for
// subsequent requests.
func (c *Client) Login(ctx context.Context, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/account/login", map[string]string{"password": password}, &resp); err != nil {
		return err
	}
	c.sessionToken = resp.Token
	return nil
}

// ServiceCreateRequest describes a new service deployment.
type ServiceCreateRequest struct {
	ServiceConfigID string `json:"serviceConfigId"`
	AgentID         int    `json:"agentId"`
}

// ServiceCreateResponse identifies the created service.
type ServiceCreateResponse struct {
	ServiceID string `json:"serviceId"`
}

// CreateService calls POST /api/v2/service.
func (c *Client) CreateService(ctx context.Context, req ServiceCreateRequest) (*ServiceCreateResponse, error) {
	var resp ServiceCreateResponse
	if err := c.request(ctx, http.MethodPost, "/api/v2/service", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartService calls POST /api/v2/service/{id}.
func (c *Client) StartService(ctx context.Context, serviceID string) error {
	return c.request(ctx, http.MethodPost, "/api/v2/service/"+serviceID, nil, nil)
}

// StopDeployment calls POST /api/v2/service/{id}/deployment/stop.
func (c *Client) StopDeployment(ctx context.Context, serviceID string) error {
	return c.request(ctx, http.MethodPost, "/api/v2/service/"+serviceID+"/deployment/stop", nil, nil)
}

// DeploymentStatus mirrors GET /api/v2/service/{id}/deployment.
type DeploymentStatus struct {
	Status string `json:"status"`
}

// GetDeployment calls GET /api/v2/service/{id}/deployment.
func (c *Client) GetDeployment(ctx context.Context, serviceID string) (*DeploymentStatus, error) {
	var resp DeploymentStatus
	if err := c.request(ctx, http.MethodGet, "/api/v2/service/"+serviceID+"/deployment", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FundingRequirements mirrors GET /api/v2/service/{id}/funding_requirements.
type FundingRequirements struct {
	Address        string `json:"address"`
	RequiredAmount string `json:"requiredAmount"`
	CurrentBalance string `json:"currentBalance"`
}

// GetFundingRequirements calls GET /api/v2/service/{id}/funding_requirements.
func (c *Client) GetFundingRequirements(ctx context.Context, serviceID string) (*FundingRequirements, error) {
	var resp FundingRequirements
	if err := c.request(ctx, http.MethodGet, "/api/v2/service/"+serviceID+"/funding_requirements", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FundRequest describes a top-up transfer.
type FundRequest struct {
	Amount string `json:"amount"`
}

// Fund calls POST /api/v2/service/{id}/fund.
func (c *Client) Fund(ctx context.Context, serviceID string, req FundRequest) error {
	return c.request(ctx, http.MethodPost, "/api/v2/service/"+serviceID+"/fund", req, nil)
}

// TerminateAndWithdraw calls POST /api/v2/service/{id}/terminate_and_withdraw,
// the daemon-side half of service teardown.
func (c *Client) TerminateAndWithdraw(ctx context.Context, serviceID string) error {
	return c.request(ctx, http.MethodPost, "/api/v2/service/"+serviceID+"/terminate_and_withdraw", nil, nil)
}

// WithdrawRequest describes a wallet withdrawal.
type WithdrawRequest struct {
	ToAddress string `json:"toAddress"`
	Amount    string `json:"amount"`
}

// Withdraw calls POST /api/wallet/withdraw.
func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) error {
	return c.request(ctx, http.MethodPost, "/api/wallet/withdraw", req, nil)
}

// WaitHealthy polls the daemon's API root until it responds or ctx is
// done, used while the daemon is still starting up as a child process.
func (c *Client) WaitHealthy(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
		if err == nil {
			if resp, err := c.httpClient.Do(req); err == nil {
				resp.Body.Close()
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("middleware: wait healthy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
