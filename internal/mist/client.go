// SPDX-License-Identifier: Apache-2.0

// Package mist is the authenticated HTTP client for the Mist management API.
// It translates transport failures into a small error taxonomy and leaves
// retry policy to the caller.
package mist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// ErrTimeout reports that the Mist API did not answer within the client
// timeout. Mapped to 504 at the HTTP boundary.
var ErrTimeout = errors.New("mist: request timed out")

// ErrUnreachable reports a connection-level failure before any response.
// Mapped to 502 at the HTTP boundary.
var ErrUnreachable = errors.New("mist: api unreachable")

// APIError is a non-2xx answer from the Mist API. The status code passes
// through to the caller unchanged.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mist: api error %d: %s", e.StatusCode, e.Body)
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying http.Client. Tests only.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to one Mist API host with token authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for host (e.g. "api.mist.com").
func New(host, apiKey string, opts ...Option) *Client {
	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	c := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get executes a GET request against endpoint with optional query params.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, params)
}

// Post executes a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// Put executes a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

// Delete executes a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetSelf returns the authenticated user and organization info.
func (c *Client) GetSelf(ctx context.Context) (map[string]any, error) {
	return c.Get(ctx, "/api/v1/self", nil)
}

// CreateSite creates a site under an organization.
func (c *Client) CreateSite(ctx context.Context, orgID string, site map[string]any) (map[string]any, error) {
	return c.Post(ctx, fmt.Sprintf("/api/v1/orgs/%s/sites", orgID), site)
}

// UpdateSiteConfig binds templates and policies to a site (late binding).
func (c *Client) UpdateSiteConfig(ctx context.Context, siteID string, cfg map[string]any) (map[string]any, error) {
	return c.Put(ctx, fmt.Sprintf("/api/v1/sites/%s", siteID), cfg)
}

// ClaimDevices claims devices into an organization's inventory by claim code.
func (c *Client) ClaimDevices(ctx context.Context, orgID string, claimCodes []string) (map[string]any, error) {
	return c.Post(ctx, fmt.Sprintf("/api/v1/orgs/%s/inventory", orgID), claimCodes)
}

// AssignDevices assigns inventory devices to a site by serial number.
func (c *Client) AssignDevices(ctx context.Context, orgID, siteID string, serials []string, managed bool) (map[string]any, error) {
	return c.Put(ctx, fmt.Sprintf("/api/v1/orgs/%s/inventory", orgID), map[string]any{
		"op":      "assign",
		"site_id": siteID,
		"serials": serials,
		"managed": managed,
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, params url.Values) (map[string]any, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("mist: encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("mist: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveMistRequestDuration(time.Since(started))
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			c.logger.Warn("mist request timed out", "method", method, "endpoint", endpoint)
			return nil, ErrTimeout
		}
		c.logger.Warn("mist request failed", "method", method, "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mist: read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("mist api error",
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		// Some endpoints answer with arrays; wrap them so callers always
		// receive a document.
		var list []any
		if listErr := json.Unmarshal(raw, &list); listErr == nil {
			return map[string]any{"results": list}, nil
		}
		return nil, fmt.Errorf("mist: decode response: %w", err)
	}
	return out, nil
}
