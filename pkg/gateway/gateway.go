package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/observability"
	"github.com/rhuss/toolgate/pkg/transport"
)

// CallIDHeader carries the call id. Callers may choose their own id (it
// must be a valid call id) so that they can cancel the call while it runs.
const CallIDHeader = "X-Call-ID"

// Config configures the HTTP surface.
type Config struct {
	// Guard protects operator routes (/v1/adapters, /v1/calls). Nil leaves
	// them open.
	Guard *auth.Guard

	// PublicPaths skip the Guard on protected routes. Entries ending in
	// "/" match by prefix.
	PublicPaths []string

	CORSOriginSuffixes []string

	// MCPPath mounts the MCP endpoint; empty disables it.
	MCPPath string

	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string

	// Ready reports readiness beyond "adapters are registered".
	Ready func(ctx context.Context) error

	Version string
	Logger  *slog.Logger
}

// Gateway serves the dispatcher over HTTP.
type Gateway struct {
	dispatcher *Dispatcher
	invoker    transport.Invoker
	mcp        *MCPBridge
	mux        *http.ServeMux
	cfg        Config
}

// New creates a Gateway. The invoker middleware chain (recovery, request
// id, logging) wraps the dispatcher for both REST and MCP calls.
func New(d *Dispatcher, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &Gateway{
		dispatcher: d,
		invoker: transport.Chain(
			transport.Recovery(),
			transport.RequestID(),
			transport.Logging(cfg.Logger),
		)(d),
		mux: http.NewServeMux(),
		cfg: cfg,
	}

	g.mux.HandleFunc("POST /v1/invoke", g.handleInvoke)
	g.mux.HandleFunc("POST /v1/tools/{name}", g.handleInvokeTool)
	g.mux.HandleFunc("GET /v1/tools", g.handleListTools)
	g.mux.Handle("GET /v1/adapters", g.protect(http.HandlerFunc(g.handleListAdapters)))
	g.mux.Handle("POST /v1/adapters/{id}/refresh", g.protect(http.HandlerFunc(g.handleRefreshAdapter)))
	g.mux.Handle("DELETE /v1/calls/{id}", g.protect(http.HandlerFunc(g.handleCancelCall)))
	g.mux.HandleFunc("GET /healthz", g.handleHealthz)
	g.mux.HandleFunc("GET /readyz", g.handleReadyz)

	if cfg.MetricsPath != "" {
		g.mux.Handle("GET "+cfg.MetricsPath, g.protect(promhttp.Handler()))
	}
	if cfg.MCPPath != "" {
		g.mcp = NewMCPBridge(cfg.Version, d.Registry().Tools, g.invoker)
		g.mux.Handle(cfg.MCPPath, g.mcp.Handler())
	}

	return g
}

// Handler returns the root handler: metrics, then CORS, then routing.
func (g *Gateway) Handler() http.Handler {
	return observability.MetricsMiddleware(CORS(g.cfg.CORSOriginSuffixes)(g.mux))
}

// Invoker returns the middleware-wrapped dispatcher.
func (g *Gateway) Invoker() transport.Invoker { return g.invoker }

// MCP returns the MCP bridge, or nil when disabled.
func (g *Gateway) MCP() *MCPBridge { return g.mcp }

// Drain cancels every in-flight call. It is meant to run after the HTTP
// server stopped accepting requests.
func (g *Gateway) Drain() int {
	n := g.dispatcher.InFlight().CancelAll()
	if n > 0 {
		g.cfg.Logger.Info("cancelled in-flight calls", "count", n)
	}
	return n
}

func (g *Gateway) protect(h http.Handler) http.Handler {
	if g.cfg.Guard == nil {
		return h
	}
	return auth.Middleware(g.cfg.Guard, auth.PublicPaths(g.cfg.PublicPaths...))(h)
}
