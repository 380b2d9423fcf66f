// Package client provides a typed Go client for the destination
// object-store HTTP API. Uploads are idempotent upserts keyed by file ID,
// so retries replay safely.
package client

import (
	"context"
	"net/http"
	"time"
)

// Default timeouts. Every network call carries one; a timeout is treated
// as a transient, retryable failure.
const (
	DefaultTransferTimeout = 300 * time.Second
	DefaultProbeTimeout    = 10 * time.Second
)

// Client is the destination transfer client.
type Client struct {
	baseURL     string
	token       string
	maxFileSize int64

	// Transfers and probes have very different latency profiles, so they
	// get separate HTTP clients with separate timeouts.
	transferClient *http.Client
	probeClient    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token supplied at orchestrator startup.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTransferTimeout sets the timeout for upload calls.
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Client) { c.transferClient.Timeout = d }
}

// WithProbeTimeout sets the timeout for existence and health probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeClient.Timeout = d }
}

// WithMaxFileSize sets the upload size ceiling in bytes.
func WithMaxFileSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithHTTPClient replaces both underlying HTTP clients (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.transferClient = hc
		c.probeClient = hc
	}
}

// New creates a transfer client for the given base URL
// (e.g. "https://workers.example.com").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		maxFileSize:    5 << 30,
		transferClient: &http.Client{Timeout: DefaultTransferTimeout},
		probeClient:    &http.Client{Timeout: DefaultProbeTimeout},
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

// HealthCheck is a cheap liveness probe used before starting a batch.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return false
	}

	c.authorize(req)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
