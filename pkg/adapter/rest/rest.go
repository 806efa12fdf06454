// Package rest implements a configuration-driven adapter for plain REST
// services. Each declared tool maps to an HTTP method and an ordered list
// of candidate paths; renamed or legacy endpoints are reached through the
// upstream endpoint-fallback rule.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/upstream"
)

const defaultHealthTimeout = 5 * time.Second

// Tool declares one tool of a REST adapter.
type Tool struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	InputSchema json.RawMessage

	// Method is the HTTP method (default POST).
	Method string

	// Paths are the candidate paths tried in order. A path may contain
	// "{arg}" placeholders that are filled from, and removed from, the
	// call arguments.
	Paths []string
}

// Config configures a REST adapter.
type Config struct {
	ID           string
	BaseURL      string
	Convention   adapter.CallConvention
	Capabilities []string
	Timeout      time.Duration

	// Headers are sent with every upstream request (e.g. a service key).
	Headers map[string]string

	// ForwardHeaders lists inbound headers passed through to the upstream
	// for modern calls.
	ForwardHeaders []string

	// HealthPath is probed with GET (default "/health").
	HealthPath    string
	HealthTimeout time.Duration

	Tools []Tool

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// Adapter is a REST adapter. It implements both invoker interfaces; the
// configured convention decides which one the registry calls.
type Adapter struct {
	cfg         Config
	client      *upstream.Client
	descriptors []api.ToolDescriptor
	byName      map[string]Tool
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.LegacyInvoker = (*Adapter)(nil)
	_ adapter.ModernInvoker = (*Adapter)(nil)
)

// New validates cfg and creates an Adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rest adapter: id is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest adapter %q: base_url is required", cfg.ID)
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}

	a := &Adapter{
		cfg: cfg,
		client: upstream.New(upstream.Config{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			Headers:    cfg.Headers,
			HTTPClient: cfg.HTTPClient,
		}),
		byName: make(map[string]Tool, len(cfg.Tools)),
	}

	for _, t := range cfg.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("rest adapter %q: tool name is required", cfg.ID)
		}
		if _, dup := a.byName[t.Name]; dup {
			return nil, fmt.Errorf("rest adapter %q: duplicate tool %q", cfg.ID, t.Name)
		}
		if len(t.Paths) == 0 {
			return nil, fmt.Errorf("rest adapter %q: tool %q has no paths", cfg.ID, t.Name)
		}
		if t.Method == "" {
			t.Method = http.MethodPost
		}
		t.Method = strings.ToUpper(t.Method)
		a.byName[t.Name] = t
		a.descriptors = append(a.descriptors, api.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Tags:        slices.Clone(t.Tags),
			InputSchema: t.InputSchema,
		})
	}

	return a, nil
}

// ID returns the adapter id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Capabilities returns the configured capability labels.
func (a *Adapter) Capabilities() []string { return a.cfg.Capabilities }

// Convention returns the configured call convention.
func (a *Adapter) Convention() adapter.CallConvention { return a.cfg.Convention }

// Tools returns the declared tools.
func (a *Adapter) Tools(context.Context) []api.ToolDescriptor { return a.descriptors }

// Invoke implements the legacy convention. No inbound headers are forwarded.
func (a *Adapter) Invoke(ctx context.Context, call adapter.LegacyCall) (any, error) {
	return a.call(ctx, call.Tool, call.Args, nil)
}

// InvokeTool implements the modern convention, forwarding the configured
// inbound headers.
func (a *Adapter) InvokeTool(ctx context.Context, tool string, args map[string]any, cc adapter.CallContext) (any, error) {
	var headers map[string]string
	for _, name := range a.cfg.ForwardHeaders {
		if v := cc.Header(name); v != "" {
			if headers == nil {
				headers = make(map[string]string, len(a.cfg.ForwardHeaders))
			}
			headers[name] = v
		}
	}
	return a.call(ctx, tool, args, headers)
}

func (a *Adapter) call(ctx context.Context, name string, args map[string]any, headers map[string]string) (any, error) {
	t, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("rest adapter %q: %w: %q", a.cfg.ID, adapter.ErrUnknownTool, name)
	}

	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}

	paths := make([]string, len(t.Paths))
	for i, p := range t.Paths {
		paths[i] = expandPath(p, args, rest)
	}

	req := upstream.Request{Method: t.Method, Headers: headers}
	switch t.Method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		req.Query = toQuery(rest)
	default:
		req.Body = rest
	}

	resp, err := a.client.DoFallback(ctx, req, paths)
	if err != nil {
		return nil, err
	}
	return resp.Data(), nil
}

// expandPath substitutes "{key}" placeholders from args and deletes used
// keys from rest.
func expandPath(path string, args, rest map[string]any) string {
	if !strings.Contains(path, "{") {
		return path
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			b.WriteString(path)
			break
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			b.WriteString(path)
			break
		}
		end += open
		key := path[open+1 : end]
		b.WriteString(path[:open])
		if v, ok := args[key]; ok {
			b.WriteString(url.PathEscape(fmt.Sprint(v)))
			delete(rest, key)
		} else {
			b.WriteString(path[open : end+1])
		}
		path = path[end+1:]
	}
	return b.String()
}

func toQuery(args map[string]any) url.Values {
	if len(args) == 0 {
		return nil
	}
	q := make(url.Values, len(args))
	for k, v := range args {
		switch tv := v.(type) {
		case []any:
			for _, item := range tv {
				q.Add(k, fmt.Sprint(item))
			}
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}
	return q
}

// Health probes GET <base_url><health_path> with a bounded timeout.
func (a *Adapter) Health(ctx context.Context) adapter.Health {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HealthTimeout)
	defer cancel()

	_, err := a.client.Do(ctx, upstream.Request{Method: http.MethodGet, Path: a.cfg.HealthPath})
	if err != nil {
		status := upstream.StatusOf(err)
		if status == 0 {
			return adapter.Health{Healthy: false, Detail: "unreachable"}
		}
		return adapter.Health{Healthy: false, Detail: fmt.Sprintf("status %d", status)}
	}
	return adapter.Health{Healthy: true}
}
