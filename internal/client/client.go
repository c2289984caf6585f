// Package client is the typed REST adapter for the AfterWord backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	pathWorkList          = "/api/work/list"
	pathWorkCreate        = "/api/work/create"
	pathTotalWordCount    = "/api/work/total_word_count"
	pathTotalProjectCount = "/api/work/total_project_count"
)

func workPath(workID string) string {
	return "/api/work/" + url.PathEscape(workID)
}

// TokenSource supplies the bearer token and is told when the server
// rejected it.
type TokenSource interface {
	Token() string
	Expire()
}

// Client talks to the backend. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	cache   *Cache
	limiter *rate.Limiter
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches bearer tokens from ts.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRateLimit throttles outgoing requests.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithCache enables the ETag read cache. Pass nil to disable it.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithTimeout sets the per-request timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client for baseURL. A trailing slash is ignored.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   NewCache(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the read cache, or nil when caching is off.
func (c *Client) Cache() *Cache {
	return c.cache
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) invalidate(workID string) {
	if c.cache != nil {
		c.cache.InvalidateWork(workID)
	}
}

func (c *Client) requestJSON(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	var cached cacheEntry
	var haveCached bool
	if method == http.MethodGet && c.cache != nil {
		if cached, haveCached = c.cache.get(path); haveCached {
			req.Header.Set("If-None-Match", cached.etag)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	c.log.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotModified && haveCached {
		c.cache.hits.Add(1)
		c.log.Debug("etag cache hit", "path", path)
		return decode(cached.body, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp.StatusCode, payload)
	}

	if method == http.MethodGet && c.cache != nil {
		if etag := resp.Header.Get("ETag"); etag != "" {
			c.cache.put(path, etag, payload)
		}
	}
	return decode(payload, out)
}

func decode(payload []byte, out any) error {
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) apiError(status int, payload []byte) error {
	var p errorPayload
	_ = json.Unmarshal(payload, &p)

	if status == http.StatusUnauthorized && c.tokens != nil {
		c.tokens.Expire()
	}

	apiErr := &APIError{Status: status, Code: p.Code, Message: p.Message}
	if status == http.StatusMethodNotAllowed {
		apiErr.Message = "Method not allowed. Check the API base URL and make sure requests go to the backend API domain."
		return apiErr
	}
	if apiErr.Message == "" {
		if detail, ok := p.Detail.(string); ok && detail != "" {
			apiErr.Message = detail
		} else {
			apiErr.Message = fmt.Sprintf("request failed with status %d", status)
		}
	}
	return apiErr
}
