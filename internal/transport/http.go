// Package transport provides the HTTP transport used by the REST dispatcher.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Client wraps a resty HTTP client with logging and configuration.
// Retries are disabled: every failure surfaces to the caller.
type Client struct {
	client *resty.Client
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Request is a fully built outbound request. RawQuery is sent verbatim so the
// bytes that were signed are the bytes the server receives.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Headers  map[string]string
	Body     []byte
}

// Response represents an HTTP response with its status code, body, and headers.
type Response struct {
	// StatusCode is the HTTP status code returned by the server.
	StatusCode int

	// Body contains the raw response body bytes.
	Body []byte

	// Headers contains the response headers as key-value pairs.
	Headers map[string]string
}

// NewClient creates a new HTTP client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &Client{
		client: client,
		logger: logger,
	}
}

// URL returns the target URL for req relative to the client's base URL.
func (r *Request) URL() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// Do executes an HTTP request and returns the raw response.
// Non-2xx statuses are not errors at this layer.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("http client is closed")
	}

	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, fmt.Errorf("unsupported http method: %s", req.Method)
	}

	r := c.client.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(req.Body)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("http request")

	resp, err := r.Execute(req.Method, req.URL())
	if err != nil {
		c.logger.Error().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("http request failed")
		return nil, err
	}

	body := resp.Bytes()
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode()).
		Int("size", len(body)).
		Msg("http response")

	headers := make(map[string]string)
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       body,
		Headers:    headers,
	}, nil
}

// Close releases the underlying HTTP client. It is safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// IsSuccess returns true if the response status code indicates success (2xx).
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError returns true for 4xx responses.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= http.StatusBadRequest && r.StatusCode < http.StatusInternalServerError
}
