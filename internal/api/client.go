// Package api is the HTTP client for the bulk-analysis backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "bulk-analysis-cli/1.0"

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody caps how much of a failed response body is read.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int

	// Token, when set, is called per request for a bearer token.
	Token func() (string, error)

	HTTPClient *http.Client
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// DefaultOptions returns sensible defaults for a backend at baseURL.
func DefaultOptions(baseURL string) *Options {
	return &Options{
		BaseURL:           baseURL,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// Client calls the bulk-analysis backend. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	token     func() (string, error)
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewClient creates a client from opts.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("api options are required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base URL %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		base:      base,
		http:      httpClient,
		userAgent: userAgent,
		limiter:   limiter,
		token:     opts.Token,
		log:       logger.OrNop(opts.Logger),
		metrics:   opts.Metrics,
	}, nil
}

// call describes one backend request.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	out    any
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := c.base.String() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, rc call) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: rc.op, Message: "rate limiter", Cause: err}
		}
	}

	var body io.Reader
	if rc.body != nil {
		data, err := json.Marshal(rc.body)
		if err != nil {
			return &Error{Op: rc.op, Message: "failed to encode request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, c.endpoint(rc.path, rc.query), body)
	if err != nil {
		return &Error{Op: rc.op, Message: "failed to create request", Cause: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if rc.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, tokenErr := c.token()
		if tokenErr != nil {
			return &Error{Op: rc.op, Message: "failed to obtain token", Cause: tokenErr}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveAPI(rc.op, 0, elapsed)
		c.log.Warn("api request failed",
			logger.String("op", rc.op),
			logger.String("request_id", requestID),
			logger.Error(err),
		)
		return &Error{Op: rc.op, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.ObserveAPI(rc.op, resp.StatusCode, elapsed)
	c.log.Debug("api request",
		logger.String("op", rc.op),
		logger.String("method", rc.method),
		logger.String("path", rc.path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", elapsed),
		logger.String("request_id", requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Op:         rc.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if rc.out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: rc.op, Message: "failed to read response body", Cause: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, rc.out); err != nil {
		return &Error{Op: rc.op, StatusCode: resp.StatusCode, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// errorMessage extracts the {error} text of a failed response,
// falling back to the status text.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
