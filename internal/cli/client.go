package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Healer-AI/p8fs-sub000/domain/rem"
	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
)

// Client talks to a running REM server.
type Client struct {
	http   *resty.Client
	tenant string
}

// APIError is the {"error": {...}} envelope returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// ParseResult is the server's rendering of a parsed query.
type ParseResult struct {
	Query string         `json:"query"`
	Plan  map[string]any `json:"plan"`
}

// NewClient creates a client for baseURL. tenant is sent as X-Tenant-ID when
// non-empty.
func NewClient(baseURL, tenant string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		tenant: tenant,
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&errorEnvelope{})
	if c.tenant != "" {
		req.SetHeader(rem.HeaderTenantID, c.tenant)
	}
	return req
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	if env, ok := resp.Error().(*errorEnvelope); ok && env.Error.Code != "" {
		apiErr := env.Error
		apiErr.Status = resp.StatusCode()
		return &apiErr
	}
	return &APIError{Status: resp.StatusCode(), Code: "http_error", Message: resp.Status()}
}

// Query executes a query string.
func (c *Client) Query(ctx context.Context, query string) (*rem.Result, error) {
	var out rem.Result
	resp, err := c.request(ctx).
		SetBody(rem.QueryRequest{Query: query, TenantID: c.tenant}).
		SetResult(&out).
		Post("/api/rem/query")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecutePlan executes a structured plan given as a JSON document.
func (c *Client) ExecutePlan(ctx context.Context, plan []byte) (*rem.Result, error) {
	var out rem.Result
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(plan).
		SetResult(&out).
		Post("/api/rem/plan")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Parse returns the plan the server would execute for query.
func (c *Client) Parse(ctx context.Context, query string) (*ParseResult, error) {
	var out ParseResult
	resp, err := c.request(ctx).
		SetBody(rem.QueryRequest{Query: query, TenantID: c.tenant}).
		SetResult(&out).
		Post("/api/rem/parse")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// CacheStats reports the server's table metadata cache.
func (c *Client) CacheStats(ctx context.Context) (*revmap.CacheStats, error) {
	var out revmap.CacheStats
	resp, err := c.request(ctx).SetResult(&out).Get("/api/rem/cache/stats")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCache drops cached metadata for table, or all tables when empty.
func (c *Client) ClearCache(ctx context.Context, table string) (string, error) {
	var out rem.CacheClearResponse
	path := "/api/rem/cache"
	if table != "" {
		path += "/" + table
	}
	resp, err := c.request(ctx).SetResult(&out).Delete(path)
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.Cleared, nil
}
