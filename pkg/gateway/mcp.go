package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/transport"
)

// MCPBridge publishes the registry catalog as an MCP server. Tool calls
// go through the same invoker as REST calls, so verification and error
// normalization are identical on both surfaces.
type MCPBridge struct {
	server  *mcp.Server
	invoker transport.Invoker
	catalog func(ctx context.Context) []api.ToolDescriptor

	mu         sync.Mutex
	registered map[string][]byte // tool name -> marshalled descriptor
}

// NewMCPBridge creates a bridge. catalog returns the current qualified
// tool list; invoker executes calls.
func NewMCPBridge(version string, catalog func(ctx context.Context) []api.ToolDescriptor, invoker transport.Invoker) *MCPBridge {
	return &MCPBridge{
		server: mcp.NewServer(
			&mcp.Implementation{Name: "toolgate", Version: version},
			&mcp.ServerOptions{HasTools: true},
		),
		invoker:    invoker,
		catalog:    catalog,
		registered: make(map[string][]byte),
	}
}

// Server returns the underlying MCP server.
func (b *MCPBridge) Server() *mcp.Server { return b.server }

// Handler serves the streamable HTTP transport. The tool set is brought
// up to date with the catalog before each request.
func (b *MCPBridge) Handler() http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return b.server
	}, nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Sync(r.Context())
		h.ServeHTTP(w, r)
	})
}

// Sync adds new or changed tools and removes vanished ones. Tools whose
// input schema is not a JSON object are skipped.
func (b *MCPBridge) Sync(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string][]byte)
	for _, td := range b.catalog(ctx) {
		raw, err := json.Marshal(td)
		if err != nil {
			continue
		}
		next[td.Name] = raw
		if prev, ok := b.registered[td.Name]; ok && bytes.Equal(prev, raw) {
			continue
		}

		schema, ok := objectSchema(td.Schema())
		if !ok {
			slog.Warn("skipping tool with non-object input schema", "tool", td.Name)
			delete(next, td.Name)
			continue
		}
		b.server.AddTool(&mcp.Tool{
			Name:        td.Name,
			Description: td.Description,
			InputSchema: schema,
		}, b.handler(td.Name))
	}

	var remove []string
	for name := range b.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		b.server.RemoveTools(remove...)
	}
	if len(remove) > 0 || len(next) != len(b.registered) {
		debug.Log("gateway", "mcp tools synced", "tools", len(next), "removed", len(remove))
	}
	b.registered = next
}

func (b *MCPBridge) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toolError(api.NewInvalidRequestError("arguments must be a JSON object")), nil
			}
		}

		var headers http.Header
		if req.Extra != nil {
			headers = req.Extra.Header
		}

		data, err := b.invoker.Invoke(ctx, &api.InvokeRequest{
			Tool:    name,
			Args:    args,
			Headers: headers,
		})
		if err != nil {
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				apiErr = api.NewServerError("internal server error")
			}
			return toolError(apiErr), nil
		}

		text, err := json.Marshal(data)
		if err != nil {
			return toolError(api.NewServerError("result is not serializable")), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil
	}
}

// toolError reports a failed call inside the tool result rather than as a
// protocol error.
func toolError(apiErr *api.APIError) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(apiErr.Type) + ": " + apiErr.Message}},
	}
}

func objectSchema(raw json.RawMessage) (map[string]any, bool) {
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, false
	}
	typ, _ := schema["type"].(string)
	return schema, strings.EqualFold(typ, "object")
}
