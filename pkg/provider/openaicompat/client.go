package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/toolgate/pkg/provider"
)

// Config configures an OpenAI-compatible provider.
type Config struct {
	Name        string
	Kind        provider.Kind // default local
	Description string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration // default 120s

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// Client performs requests against an OpenAI-compatible Chat Completions
// backend and implements provider.Provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
}

var _ provider.Provider = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("openaicompat: name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat %q: base_url is required", cfg.Name)
	}
	if cfg.Kind == "" {
		cfg.Kind = provider.KindLocal
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: hc,
		// Normalize: remove trailing slash and an optional /v1 suffix.
		baseURL: strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1"),
	}, nil
}

func (c *Client) Name() string        { return c.cfg.Name }
func (c *Client) Kind() provider.Kind { return c.cfg.Kind }
func (c *Client) Description() string { return c.cfg.Description }

// Chat performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	chatReq := TranslateToChat(req, c.cfg.Model)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(http.MethodPost, url, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(http.MethodPost, url, httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("parsing backend response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	return TranslateResponse(&chatResp), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
