package upstream

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

	"github.com/rhuss/toolgate/pkg/debug"
)

// maxResponseSize caps how much of an upstream body is buffered.
const maxResponseSize = 8 << 20

// Config holds the settings for one upstream client.
type Config struct {
	// BaseURL is prepended to every request path.
	BaseURL string

	// Timeout bounds every request (default: 30s).
	Timeout time.Duration

	// Headers are sent with every request (e.g. a service API key).
	Headers map[string]string

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// Client executes requests against one upstream service.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// Request describes one upstream call.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string

	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is a buffered 2xx upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Path is the candidate path that produced this response.
	Path string
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Data returns the body decoded as generic JSON, or the raw string when
// the body is not JSON. An empty body yields nil.
func (r *Response) Data() any {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return string(r.Body)
	}
	return v
}

// New creates a Client from the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		client:  hc,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes one request. It does not retry.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	debug.Log("upstream", "request", "method", method, "url", target)
	if debug.Enabled("upstream") && len(req.Headers) > 0 {
		debug.Trace("upstream", "forwarded headers", "headers", debug.Headers(req.Headers))
	}

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UnavailableError{Method: method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, &UnavailableError{Method: method, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}

	debug.Log("upstream", "response",
		"method", method,
		"url", target,
		"status", httpResp.StatusCode,
		"duration", time.Since(start),
	)
	debug.Trace("upstream", "response body", "body", debug.Truncate(string(data), 2048))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, URL: target, Status: httpResp.StatusCode, Body: data}
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   data,
		Path:   req.Path,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
