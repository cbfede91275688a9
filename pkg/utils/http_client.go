// Package utils provides utility functions and abstractions for connectsync.
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient provides a reusable HTTP client with common functionality
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// HTTPRequest represents an HTTP request
type HTTPRequest struct {
	URL            string
	Method         string
	Headers        map[string]string
	QueryParams    map[string]string
	Cookies        map[string]string
	Body           interface{}
	Form           map[string]string // sent as multipart/form-data when set
	Timeout        time.Duration
	FollowRedirect bool
}

// HTTPResponse represents an HTTP response
type HTTPResponse struct {
	StatusCode  int
	Headers     http.Header
	ContentType string
	RawBody     []byte
	Duration    time.Duration
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// WithRateLimit paces requests to at most perSecond, with bursts of one.
// Zero or less removes the limit.
func (c *HTTPClient) WithRateLimit(perSecond float64) *HTTPClient {
	if perSecond <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return c
}

// Timeout returns the default per-request timeout
func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// Do executes an HTTP request. Every request is bounded by the request
// timeout, or the client default when the request sets none.
func (c *HTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	// Set default method if not provided
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bodyReader, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	// Create HTTP request with query parameters
	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(req.QueryParams) > 0 {
		q := parsedURL.Query()
		for key, value := range req.QueryParams {
			q.Set(key, value)
		}
		parsedURL.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, parsedURL.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add headers
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if cookie := cookieHeader(req.Cookies); cookie != "" {
		httpReq.Header.Set("Cookie", cookie)
	}

	// Configure redirect policy on a copy so concurrent requests never see
	// each other's settings
	client := *c.client
	if !req.FollowRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	startTime := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		RawBody:     body,
		Duration:    time.Since(startTime),
	}, nil
}

// IsJSON reports whether the response declares a JSON content type
func (r *HTTPResponse) IsJSON() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.ContentType)), "application/json")
}

// Text returns the body as a string
func (r *HTTPResponse) Text() string {
	return string(r.RawBody)
}

// DecodeJSON unmarshals the body into v
func (r *HTTPResponse) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.RawBody, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func encodeBody(req *HTTPRequest) (io.Reader, string, error) {
	if len(req.Form) > 0 {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, key := range sortedKeys(req.Form) {
			if err := w.WriteField(key, req.Form[key]); err != nil {
				return nil, "", fmt.Errorf("failed to write form field %s: %w", key, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close form: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	}

	if req.Body == nil {
		return nil, "", nil
	}
	switch body := req.Body.(type) {
	case string:
		return strings.NewReader(body), "", nil
	case []byte:
		return bytes.NewReader(body), "", nil
	default:
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(jsonBody), "application/json;charset=UTF-8", nil
	}
}

func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, name := range sortedKeys(cookies) {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
