// Package openai implements the remote chat provider on the official
// openai-go SDK. Any service speaking the OpenAI API (OpenAI, OpenRouter,
// Azure-compatible proxies) can be configured through its base URL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rhuss/toolgate/pkg/provider"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// Config configures the remote provider.
type Config struct {
	Name        string
	Kind        provider.Kind // default remote
	Description string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration // default 120s

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// Provider is a chat provider backed by openai-go.
type Provider struct {
	cfg    Config
	client openai.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("openai provider: name is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai provider %q: model is required", cfg.Name)
	}
	if cfg.Kind == "" {
		cfg.Kind = provider.KindRemote
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	// Retries stay off: the router owns the single fallback.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Provider{cfg: cfg, client: openai.NewClient(opts...)}, nil
}

func (p *Provider) Name() string        { return p.cfg.Name }
func (p *Provider) Kind() provider.Kind { return p.cfg.Kind }
func (p *Provider) Description() string { return p.cfg.Description }

// Chat performs one Chat Completions call.
func (p *Provider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai provider %q: no choices returned", p.cfg.Name)
	}

	choice := resp.Choices[0]
	return &provider.ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toMessages(msgs []provider.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapError converts SDK errors into upstream errors so the gateway maps
// them like any other upstream failure.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		body, _ := json.Marshal(map[string]string{"error": msg})
		url := ""
		if apiErr.Request != nil {
			url = apiErr.Request.URL.String()
		}
		return &upstream.StatusError{Method: http.MethodPost, URL: url, Status: apiErr.StatusCode, Body: body}
	}
	return &upstream.UnavailableError{Method: http.MethodPost, URL: "chat/completions", Err: err}
}
