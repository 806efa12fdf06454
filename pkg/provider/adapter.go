package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
)

// Tool names exposed by the provider adapter.
const (
	ToolChat         = "chat"
	ToolListServices = "list_services"
)

var chatSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "provider": {"type": "string"},
    "model": {"type": "string"},
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "role": {"type": "string", "enum": ["system", "user", "assistant"]},
          "content": {"type": "string"}
        },
        "required": ["role", "content"]
      }
    },
    "temperature": {"type": "number"},
    "max_tokens": {"type": "integer"}
  },
  "required": ["messages"]
}`)

// Adapter exposes a Router as registry tools. It uses the legacy call
// convention: chat routing needs no inbound headers.
type Adapter struct {
	id     string
	router *Router
	tools  []api.ToolDescriptor
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.LegacyInvoker = (*Adapter)(nil)
)

// NewAdapter wraps router as the adapter id.
func NewAdapter(id string, router *Router) *Adapter {
	return &Adapter{
		id:     id,
		router: router,
		tools: []api.ToolDescriptor{
			{
				Name:        ToolChat,
				Description: "Send a chat completion to the configured AI providers",
				Category:    "ai",
				InputSchema: chatSchema,
			},
			{
				Name:        ToolListServices,
				Description: "List the AI providers available to callers",
				Category:    "ai",
				InputSchema: api.DefaultInputSchema,
			},
		},
	}
}

func (a *Adapter) ID() string                                 { return a.id }
func (a *Adapter) Capabilities() []string                     { return []string{"ai", "chat"} }
func (a *Adapter) Convention() adapter.CallConvention         { return adapter.Legacy }
func (a *Adapter) Tools(context.Context) []api.ToolDescriptor { return a.tools }

// Health reports healthy while at least one provider is configured.
func (a *Adapter) Health(context.Context) adapter.Health {
	n := len(a.router.Catalog().Services)
	if n == 0 {
		return adapter.Health{Healthy: false, Detail: "no providers allowed"}
	}
	return adapter.Health{Healthy: true, Detail: fmt.Sprintf("%d providers", n)}
}

// Invoke executes chat or list_services.
func (a *Adapter) Invoke(ctx context.Context, call adapter.LegacyCall) (any, error) {
	switch call.Tool {
	case ToolListServices:
		return a.router.Catalog(), nil
	case ToolChat:
		var req ChatRequest
		if err := decodeArgs(call.Args, &req); err != nil {
			return nil, api.NewInvalidRequestError(err.Error())
		}
		if err := req.Validate(); err != nil {
			return nil, api.NewInvalidRequestError(err.Error())
		}
		resp, err := a.router.Chat(ctx, &req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("provider adapter: %w: %q", adapter.ErrUnknownTool, call.Tool)
}

func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
