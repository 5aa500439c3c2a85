// Package indexer queries the marketplace indexer's GraphQL endpoint for
// undelivered requests, job-definition status, and on-chain completion
// checks.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/httputil"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 4 << 20 // 4MiB, a page of requests plus dependencies
)

// Client queries the indexer's GraphQL endpoint.
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

// New builds a Client against the indexer's GraphQL endpoint.
func New(cfg Config) (*Client, error) {
	baseURL, _, err := httputil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("indexer: %w", err)
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httputil.NewClient(httputil.ClientConfig{Timeout: cfg.Timeout, HTTPClient: cfg.HTTPClient}, defaultTimeout),
		maxBodyBytes: httputil.ResolveMaxBodyBytes(cfg.MaxBodyBytes, defaultMaxBodySize),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("indexer: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("indexer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _, _ := httputil.ReadAllWithLimit(resp.Body, 32<<10)
		return fmt.Errorf("indexer: request failed: %s - %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	raw, err := httputil.ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return fmt.Errorf("indexer: read response: %w", err)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(raw, &gqlResp); err != nil {
		return fmt.Errorf("indexer: unmarshal response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("indexer: graphql error: %s", gqlResp.Errors[0].Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("indexer: unmarshal data: %w", err)
	}
	return nil
}

// UndeliveredRequestsQuery selects pending requests matching a mech,
// workstream, and venture filter.
type UndeliveredRequestsQuery struct {
	Mechs         []string
	WorkstreamIDs []string
	VentureIDs    []string
	Limit         int
	TemplateOnly  bool // true selects jobName containing "(via x402)"
}

type rawRequest struct {
	ID              string   `json:"id"`
	Mech            string   `json:"mech"`
	Sender          string   `json:"sender"`
	WorkstreamID    string   `json:"workstreamId"`
	IPFSHash        string   `json:"ipfsHash"`
	BlockTimestamp  int64    `json:"blockTimestamp"`
	Delivered       bool     `json:"delivered"`
	Dependencies    []string `json:"dependencies"`
	EnabledTools    []string `json:"enabledTools"`
	JobName         string   `json:"jobName"`
}

func (r rawRequest) toDomain() domain.Request {
	return domain.Request{
		ID:             r.ID,
		Mech:           r.Mech,
		Sender:         r.Sender,
		WorkstreamID:   r.WorkstreamID,
		BlockTimestamp: time.Unix(r.BlockTimestamp, 0),
		IPFSHash:       r.IPFSHash,
		Delivered:      r.Delivered,
		Dependencies:   r.Dependencies,
		RequiredTools:  r.EnabledTools,
		JobName:        r.JobName,
	}
}

// UndeliveredRequests issues the "requests" GraphQL query, ordered by
// block timestamp descending so a backlogged indexer keeps surfacing new
// work instead of starving on the oldest entries.
func (c *Client) UndeliveredRequests(ctx context.Context, q UndeliveredRequestsQuery) ([]domain.Request, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
		query UndeliveredRequests($mechs: [String!], $workstreamIds: [String!], $ventureIds: [String!], $limit: Int!) {
			requests(where: {
				delivered: false,
				mech_in: $mechs,
				workstreamId_in: $workstreamIds,
				ventureId_in: $ventureIds
			}, orderBy: "blockTimestamp", orderDirection: "desc", limit: $limit) {
				id
				mech
				sender
				workstreamId
				ipfsHash
				blockTimestamp
				delivered
				dependencies
				enabledTools
				jobName
			}
		}
	`

	variables := map[string]any{
		"mechs":         q.Mechs,
		"workstreamIds": q.WorkstreamIDs,
		"ventureIds":    q.VentureIDs,
		"limit":         limit,
	}

	var result struct {
		Requests []rawRequest `json:"requests"`
	}
	if err := c.do(ctx, query, variables, &result); err != nil {
		return nil, err
	}

	out := make([]domain.Request, 0, len(result.Requests))
	for _, r := range result.Requests {
		if q.TemplateOnly && !strings.Contains(r.JobName, "(via x402)") {
			continue
		}
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Request looks up a single request by id.
func (c *Client) Request(ctx context.Context, id string) (*domain.Request, error) {
	const query = `
		query SingleRequest($id: ID!) {
			request(id: $id) {
				id
				mech
				sender
				workstreamId
				ipfsHash
				blockTimestamp
				delivered
				dependencies
				enabledTools
				jobName
			}
		}
	`
	var result struct {
		Request *rawRequest `json:"request"`
	}
	if err := c.do(ctx, query, map[string]any{"id": id}, &result); err != nil {
		return nil, err
	}
	if result.Request == nil {
		return nil, nil
	}
	req := result.Request.toDomain()
	return &req, nil
}

// JobDefinition looks up a job definition's full record, including the
// last-interaction timestamp the dependency filter's staleness check
// needs.
func (c *Client) JobDefinition(ctx context.Context, definitionID string) (*domain.JobDefinition, error) {
	const query = `
		query JobDefinition($id: ID!) {
			jobDefinition(id: $id) {
				id
				name
				lastStatus
				lastInteraction
				codeMetadata {
					branch
					baseBranch
				}
			}
		}
	`
	var result struct {
		JobDefinition *struct {
			ID              string               `json:"id"`
			Name            string               `json:"name"`
			LastStatus      string               `json:"lastStatus"`
			LastInteraction int64                `json:"lastInteraction"`
			CodeMetadata    *domain.CodeMetadata `json:"codeMetadata"`
		} `json:"jobDefinition"`
	}
	if err := c.do(ctx, query, map[string]any{"id": definitionID}, &result); err != nil {
		return nil, err
	}
	if result.JobDefinition == nil {
		return nil, fmt.Errorf("indexer: job definition %s not found", definitionID)
	}
	jd := result.JobDefinition
	return &domain.JobDefinition{
		ID:              jd.ID,
		Name:            jd.Name,
		LastStatus:      domain.JobDefinitionStatus(jd.LastStatus),
		LastInteraction: time.Unix(jd.LastInteraction, 0),
		Code:            jd.CodeMetadata,
	}, nil
}

// JobDefinitionStatus looks up a job definition's lifecycle status by id.
func (c *Client) JobDefinitionStatus(ctx context.Context, definitionID string) (domain.JobDefinitionStatus, error) {
	const query = `
		query JobDefinitionStatus($id: ID!) {
			jobDefinition(id: $id) {
				lastStatus
			}
		}
	`
	var result struct {
		JobDefinition *struct {
			LastStatus string `json:"lastStatus"`
		} `json:"jobDefinition"`
	}
	if err := c.do(ctx, query, map[string]any{"id": definitionID}, &result); err != nil {
		return "", err
	}
	if result.JobDefinition == nil {
		return "", fmt.Errorf("indexer: job definition %s not found", definitionID)
	}
	return domain.JobDefinitionStatus(result.JobDefinition.LastStatus), nil
}

// JobDefinitionCodeMetadata looks up a job definition's branch metadata.
func (c *Client) JobDefinitionCodeMetadata(ctx context.Context, definitionID string) (*domain.CodeMetadata, error) {
	const query = `
		query JobDefinitionCode($id: ID!) {
			jobDefinition(id: $id) {
				codeMetadata {
					branch
					baseBranch
				}
			}
		}
	`
	var result struct {
		JobDefinition *struct {
			CodeMetadata *domain.CodeMetadata `json:"codeMetadata"`
		} `json:"jobDefinition"`
	}
	if err := c.do(ctx, query, map[string]any{"id": definitionID}, &result); err != nil {
		return nil, err
	}
	if result.JobDefinition == nil {
		return nil, fmt.Errorf("indexer: job definition %s not found", definitionID)
	}
	return result.JobDefinition.CodeMetadata, nil
}

// ResolveDependencyDefinition looks up the most recent request in the
// given workstream with the given job name and returns its resolved
// job-definition id, used when a dependency identifier in a request's
// dependency list is a job name rather than an already-resolved
// definition id.
func (c *Client) ResolveDependencyDefinition(ctx context.Context, workstreamID, jobName string) (string, error) {
	const query = `
		query ResolveDependency($workstreamId: String!, $jobName: String!) {
			requests(where: {workstreamId: $workstreamId, jobName: $jobName}, orderBy: "blockTimestamp", orderDirection: "desc", limit: 1) {
				jobDefinitionId
			}
		}
	`
	var result struct {
		Requests []struct {
			JobDefinitionID string `json:"jobDefinitionId"`
		} `json:"requests"`
	}
	if err := c.do(ctx, query, map[string]any{"workstreamId": workstreamID, "jobName": jobName}, &result); err != nil {
		return "", err
	}
	if len(result.Requests) == 0 || result.Requests[0].JobDefinitionID == "" {
		return "", fmt.Errorf("indexer: no definition resolved for workstream %s job %s", workstreamID, jobName)
	}
	return result.Requests[0].JobDefinitionID, nil
}

// RedispatchDefinition triggers a fresh execution of definitionID
//. The indexer is the collaborator best
// positioned to own this: it already tracks job-definition lifecycle and
// exposes it as a GraphQL mutation alongside the read-only queries above.
func (c *Client) RedispatchDefinition(ctx context.Context, definitionID string) error {
	const mutation = `
		mutation RedispatchDefinition($id: ID!) {
			redispatchJobDefinition(id: $id) {
				id
			}
		}
	`
	return c.do(ctx, mutation, map[string]any{"id": definitionID}, nil)
}

// ChainCompletionCheck reports whether the marketplace has already
// recorded a delivery for requestID, used to dedupe before reposting or
// redispatching.
func (c *Client) ChainCompletionCheck(ctx context.Context, requestID string) (bool, error) {
	const query = `
		query ChainCompletion($id: ID!) {
			request(id: $id) {
				delivered
			}
		}
	`
	var result struct {
		Request *struct {
			Delivered bool `json:"delivered"`
		} `json:"request"`
	}
	if err := c.do(ctx, query, map[string]any{"id": requestID}, &result); err != nil {
		return false, err
	}
	if result.Request == nil {
		return false, nil
	}
	return result.Request.Delivered, nil
}

// RequestCount returns how many requests the marketplace has recorded
// for safe's multisig since epochStart, used by the Staking coordinator's
// activity-target gate.
func (c *Client) RequestCount(ctx context.Context, safe string, epochStart time.Time) (uint64, error) {
	const query = `
		query RequestCount($safe: String!, $since: Int!) {
			requestCount(safe: $safe, since: $since) {
				count
			}
		}
	`
	var result struct {
		RequestCount *struct {
			Count uint64 `json:"count"`
		} `json:"requestCount"`
	}
	if err := c.do(ctx, query, map[string]any{"safe": safe, "since": epochStart.Unix()}, &result); err != nil {
		return 0, err
	}
	if result.RequestCount == nil {
		return 0, nil
	}
	return result.RequestCount.Count, nil
}
