// Package http provides outbound HTTP client infrastructure for mirror and
// scrape requests with per-host rate limiting, circuit breaking, and
// proxy-aware transports.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Client wraps an HTTP client with rate limiting, circuit breaking, and
// per-(proxy, TLS policy) transport caching.
type Client struct {
	config     *Config
	limiter    *RateLimiter
	breaker    *CircuitBreaker
	mu         sync.Mutex
	transports map[transportKey]*http.Transport
}

// Config holds outbound HTTP client configuration.
type Config struct {
	// Timeout is the default total request timeout.
	Timeout time.Duration

	// UserAgent overrides the rotating browser user agent when set.
	UserAgent string

	// RateLimiter configuration.
	RateLimiter RateLimiterConfig

	// CircuitBreaker configuration.
	CircuitBreaker CircuitBreakerConfig

	// Transport configures connection pooling.
	Transport TransportConfig
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	// MaxIdleConns is the maximum number of idle connections across all hosts.
	MaxIdleConns int
	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int
	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers. This is
	// the effective timeout for requests with unbounded total time (stream
	// downloads).
	ResponseHeaderTimeout time.Duration
	// ForceAttemptHTTP2 enables HTTP/2 where the server supports it.
	ForceAttemptHTTP2 bool
}

// DefaultConfig returns sensible defaults for the outbound client.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport: TransportConfig{
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// RequestOptions customize a single outbound request.
type RequestOptions struct {
	// Proxy is the proxy URL for this request; empty means direct.
	Proxy string
	// InsecureTLS disables certificate verification (broken mirror certs).
	InsecureTLS bool
	// Timeout overrides the client default. Negative disables the total
	// timeout entirely; header timeout still applies.
	Timeout time.Duration
	// Referer is set as the Referer header when non-empty.
	Referer string
	// Headers are additional request headers.
	Headers map[string]string
}

type transportKey struct {
	proxy    string
	insecure bool
}

// New creates a new outbound client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		config:     cfg,
		limiter:    NewRateLimiter(cfg.RateLimiter),
		breaker:    NewCircuitBreaker(cfg.CircuitBreaker),
		transports: make(map[transportKey]*http.Transport),
	}
}

// Get issues a GET request honoring rate limits and circuit state.
func (c *Client) Get(ctx context.Context, rawURL string, opts RequestOptions) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.Do(req, opts)
}

// Post issues a POST request honoring rate limits and circuit state.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body io.Reader, opts RequestOptions) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req, opts)
}

// GetJSON issues a GET request and decodes a 200 response body into v.
// Non-200 responses are returned as *HTTPError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, opts RequestOptions, v any) error {
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	if _, ok := opts.Headers["Accept"]; !ok {
		opts.Headers["Accept"] = "application/json"
	}

	resp, err := c.Get(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Do executes the request through the rate limiter and circuit breaker.
// The caller owns the response body.
func (c *Client) Do(req *http.Request, opts RequestOptions) (*http.Response, error) {
	host := req.URL.Hostname()

	if err := c.limiter.Wait(req.Context(), host); err != nil {
		return nil, err
	}
	if err := c.breaker.Allow(host); err != nil {
		return nil, err
	}

	if req.Header.Get("User-Agent") == "" {
		ua := c.config.UserAgent
		if ua == "" {
			ua = RandomUserAgent()
		}
		req.Header.Set("User-Agent", ua)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	timeout := c.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	} else if opts.Timeout < 0 {
		timeout = 0
	}

	httpClient := &http.Client{
		Transport: c.transport(opts),
		Timeout:   timeout,
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure(host)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		c.breaker.RecordFailure(host)
	} else {
		c.breaker.RecordSuccess(host)
	}
	return resp, nil
}

// transport returns a cached transport for the (proxy, TLS policy) pair.
func (c *Client) transport(opts RequestOptions) *http.Transport {
	key := transportKey{proxy: opts.Proxy, insecure: opts.InsecureTLS}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.transports[key]; ok {
		return t
	}

	t := &http.Transport{
		MaxIdleConns:          c.config.Transport.MaxIdleConns,
		MaxIdleConnsPerHost:   c.config.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.config.Transport.IdleConnTimeout,
		ResponseHeaderTimeout: c.config.Transport.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     c.config.Transport.ForceAttemptHTTP2,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
	if opts.InsecureTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c.transports[key] = t
	return t
}
