package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/upstream"
)

const (
	defaultCallTimeout   = 30 * time.Second
	defaultHealthTimeout = 3 * time.Second
	defaultRetryBackoff  = 30 * time.Second
)

// ErrClosed is reported for calls made after Close.
var ErrClosed = errors.New("mcp adapter closed")

// Config configures an MCP adapter.
type Config struct {
	ID           string
	Capabilities []string

	// Transport is "streamable-http" (default) or "sse".
	Transport string

	// URL is the MCP server endpoint.
	URL string

	// Headers are sent with every request to the server.
	Headers map[string]string

	// OAuth, when set, authenticates the connection with the
	// client_credentials grant.
	OAuth *OAuthConfig

	// Category is assigned to every listed tool.
	Category string

	// CallTimeout bounds every connect, listing and call.
	CallTimeout   time.Duration
	HealthTimeout time.Duration

	// RetryBackoff bounds how often a failed connection is retried from
	// the catalog path.
	RetryBackoff time.Duration

	// Version is reported in the client handshake.
	Version string

	// HTTPClient is the base client for the transport (useful for testing).
	HTTPClient *http.Client
}

// Adapter fronts one MCP server. Calls use the legacy convention: the
// session is shared across callers, so inbound headers are never
// forwarded and the server is authenticated with the adapter's own
// credentials.
type Adapter struct {
	cfg       Config
	transport func() (mcp.Transport, error)
	group     singleflight.Group

	// mu guards the fields below and is never held across network I/O.
	mu          sync.Mutex
	live        *mcp.ClientSession
	tools       []api.ToolDescriptor
	lastAttempt time.Time
	closed      bool
	now         func() time.Time
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.LegacyInvoker = (*Adapter)(nil)
)

// New validates cfg and creates an Adapter. No connection is made until
// the first catalog read, Refresh or call.
func New(cfg Config) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("mcp adapter: id is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcp adapter %q: url is required", cfg.ID)
	}
	switch cfg.Transport {
	case "", "streamable-http", "sse":
	default:
		return nil, fmt.Errorf("mcp adapter %q: unsupported transport %q", cfg.ID, cfg.Transport)
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	a := &Adapter{cfg: cfg, now: time.Now}
	a.transport = a.httpTransport
	return a, nil
}

// NewWithTransport creates an Adapter that connects over t instead of
// HTTP. The transport can only be connected once.
func NewWithTransport(cfg Config, t mcp.Transport) (*Adapter, error) {
	if cfg.URL == "" {
		cfg.URL = "memory://" + cfg.ID
	}
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.transport = func() (mcp.Transport, error) { return t, nil }
	return a, nil
}

func (a *Adapter) httpTransport() (mcp.Transport, error) {
	client := buildHTTPClient(a.cfg.HTTPClient, a.cfg.Headers, a.cfg.OAuth)
	switch a.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: a.cfg.URL, HTTPClient: client}, nil
	default:
		return &mcp.StreamableClientTransport{Endpoint: a.cfg.URL, HTTPClient: client}, nil
	}
}

func (a *Adapter) ID() string                         { return a.cfg.ID }
func (a *Adapter) Capabilities() []string             { return a.cfg.Capabilities }
func (a *Adapter) Convention() adapter.CallConvention { return adapter.Legacy }

// Tools returns the cached tool list. Before the first successful listing
// it connects on demand, at most once per retry backoff.
func (a *Adapter) Tools(ctx context.Context) []api.ToolDescriptor {
	a.mu.Lock()
	loaded := a.tools != nil
	due := a.lastAttempt.IsZero() || a.now().Sub(a.lastAttempt) >= a.cfg.RetryBackoff
	a.mu.Unlock()

	if !loaded && due {
		if err := a.Refresh(ctx); err != nil {
			debug.Log("registry", "mcp tool listing failed", "adapter", a.cfg.ID, "error", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tools
}

// Refresh re-lists the server's tools, connecting first if needed. The
// previous list is kept when listing fails. Concurrent refreshes share one
// pass; a caller whose ctx ends stops waiting without aborting it.
func (a *Adapter) Refresh(ctx context.Context) error {
	ch := a.group.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.CallTimeout)
		defer cancel()
		return nil, a.refresh(rctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return a.unavailable("tools/list", ctx.Err())
	}
}

func (a *Adapter) refresh(ctx context.Context) error {
	a.mu.Lock()
	a.lastAttempt = a.now()
	a.mu.Unlock()

	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	var tools []api.ToolDescriptor
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			a.dropSession(session)
			return a.unavailable("tools/list", err)
		}
		td, err := a.descriptor(tool)
		if err != nil {
			return fmt.Errorf("mcp adapter %q: tool %q: %w", a.cfg.ID, tool.Name, err)
		}
		tools = append(tools, td)
	}
	if tools == nil {
		tools = []api.ToolDescriptor{}
	}

	a.mu.Lock()
	a.tools = tools
	a.mu.Unlock()
	debug.Log("registry", "mcp tools listed", "adapter", a.cfg.ID, "tools", len(tools))
	return nil
}

func (a *Adapter) descriptor(t *mcp.Tool) (api.ToolDescriptor, error) {
	td := api.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Category:    a.cfg.Category,
	}
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return td, fmt.Errorf("marshaling input schema: %w", err)
		}
		td.InputSchema = data
	}
	if t.Annotations != nil && t.Annotations.ReadOnlyHint {
		td.Tags = []string{"read-only"}
	}
	return td, nil
}

// Invoke calls the tool on the server. A result flagged as an error is
// reported as a 422 upstream rejection carrying the tool's text output.
func (a *Adapter) Invoke(ctx context.Context, call adapter.LegacyCall) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	session, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: call.Tool, Arguments: call.Args})
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			a.dropSession(session)
		}
		return nil, a.unavailable("tools/call "+call.Tool, err)
	}

	text := textOf(res)
	if res.IsError {
		body, _ := json.Marshal(map[string]string{"error": text})
		return nil, &upstream.StatusError{
			Method: "tools/call",
			URL:    a.cfg.URL + "#" + call.Tool,
			Status: http.StatusUnprocessableEntity,
			Body:   body,
		}
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	var v any
	if json.Unmarshal([]byte(text), &v) == nil {
		return v, nil
	}
	return text, nil
}

// Health pings the server. A never-connected adapter connects first.
func (a *Adapter) Health(ctx context.Context) adapter.Health {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HealthTimeout)
	defer cancel()

	session, err := a.session(ctx)
	if err != nil {
		return adapter.Health{Healthy: false, Detail: "unreachable"}
	}
	if err := session.Ping(ctx, nil); err != nil {
		return adapter.Health{Healthy: false, Detail: "ping failed"}
	}
	return adapter.Health{Healthy: true}
}

// Close ends the session. Later calls fail without reconnecting.
func (a *Adapter) Close() error {
	a.mu.Lock()
	live := a.live
	a.live = nil
	a.closed = true
	a.mu.Unlock()
	if live == nil {
		return nil
	}
	return live.Close()
}

// session returns the live session, connecting if there is none.
// Concurrent connects share one attempt bounded by CallTimeout.
func (a *Adapter) session(ctx context.Context) (*mcp.ClientSession, error) {
	a.mu.Lock()
	session, closed := a.live, a.closed
	a.mu.Unlock()
	if session != nil {
		return session, nil
	}
	if closed {
		return nil, a.unavailable("connect", ErrClosed)
	}

	ch := a.group.DoChan("connect", func() (any, error) {
		a.mu.Lock()
		existing := a.live
		a.mu.Unlock()
		if existing != nil {
			return existing, nil
		}
		return a.connect(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*mcp.ClientSession), nil
	case <-ctx.Done():
		return nil, a.unavailable("connect", ctx.Err())
	}
}

func (a *Adapter) connect(ctx context.Context) (*mcp.ClientSession, error) {
	t, err := a.transport()
	if err != nil {
		return nil, fmt.Errorf("mcp adapter %q: %w", a.cfg.ID, err)
	}
	// The SDK detaches the connection from this context; it only bounds
	// the handshake.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.CallTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "toolgate", Version: a.cfg.Version}, nil)
	session, err := client.Connect(cctx, t, nil)
	if err != nil {
		return nil, a.unavailable("connect", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = session.Close()
		return nil, a.unavailable("connect", ErrClosed)
	}
	a.live = session
	a.mu.Unlock()
	debug.Log("registry", "mcp session established", "adapter", a.cfg.ID, "url", a.cfg.URL)
	return session, nil
}

// dropSession closes s if it is still the live session.
func (a *Adapter) dropSession(s *mcp.ClientSession) {
	a.mu.Lock()
	if a.live != s {
		a.mu.Unlock()
		return
	}
	a.live = nil
	a.mu.Unlock()
	_ = s.Close()
}

func (a *Adapter) unavailable(method string, err error) error {
	return &upstream.UnavailableError{Method: method, URL: a.cfg.URL, Err: err}
}

// textOf joins the text blocks of a result.
func textOf(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
