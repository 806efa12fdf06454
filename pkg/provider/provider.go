package provider

import (
	"context"
	"fmt"
)

// Kind classifies a provider as local (low-latency, self-hosted) or remote.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ParseKind validates a configured kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLocal, KindRemote:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown provider kind %q", s)
}

// Provider is one chat backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier used in policy and requests.
	Name() string

	// Kind reports whether the provider is local or remote.
	Kind() Kind

	// Description is shown in the service catalog.
	Description() string

	// Chat performs one non-streaming completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-neutral chat request.
type ChatRequest struct {
	// Provider is the caller's requested provider. It is honored only when
	// the policy allows request overrides.
	Provider string `json:"provider,omitempty"`

	// Model overrides the provider's configured model.
	Model string `json:"model,omitempty"`

	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResponse is the provider-neutral chat response.
type ChatResponse struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`

	// ServedBy is the provider that produced this response.
	ServedBy string `json:"served_by"`

	// Requested is the provider name the policy resolved to, e.g. "auto".
	Requested string `json:"requested"`

	// FallbackFrom names the provider that failed before ServedBy answered.
	FallbackFrom string `json:"fallback_from,omitempty"`
}

// Validate checks the request shape.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}
