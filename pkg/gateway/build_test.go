package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/toolgate/pkg/config"
)

const buildKey = "sk_build_key"

const buildDocs = "## Messaging\n\n" +
	"| Function | Path | Auth required |\n" +
	"|---|---|---|\n" +
	"| Send SMS | /functions/v1/send-sms | yes |\n" +
	"| Status page | /functions/v1/status | no |\n"

// fakeUpstream serves a REST service, an MCP server, the function
// platform with its docs, and two chat completion backends.
type fakeUpstream struct {
	v2Hits    atomic.Int32
	legacyKey atomic.Value
	smsKey    atomic.Value
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /svc/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		f.v2Hits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /svc/orders", func(w http.ResponseWriter, r *http.Request) {
		f.legacyKey.Store(r.Header.Get("X-API-Key"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "o-1", "item": body["item"]})
	})
	mux.HandleFunc("GET /docs/functions.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(buildDocs))
	})
	mux.HandleFunc("POST /functions/v1/{slug}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("slug") == "send-sms" {
			f.smsKey.Store(r.Header.Get("X-API-Key"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"slug": r.PathValue("slug")})
	})
	mux.HandleFunc("POST /local/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	})
	mux.HandleFunc("POST /cloud/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c-1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	})
	crm := mcp.NewServer(&mcp.Implementation{Name: "crm", Version: "1.0.0"}, nil)
	crm.AddTool(&mcp.Tool{Name: "lookup_customer", InputSchema: map[string]any{"type": "object"}},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: `{"plan":"pro"}`}}}, nil
		})
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return crm }, nil))
	return mux
}

func buildConfig(base string) config.Config {
	cfg := config.Defaults()
	cfg.Gateway.CORSOriginSuffixes = []string{".example.com"}
	cfg.Auth.Delegate = config.DelegateConfig{
		Type: "static",
		APIKeys: []config.APIKeyConfig{
			{Key: buildKey, Kind: "api_key", Subject: "svc", TenantID: "org-1"},
		},
	}
	cfg.Adapters = []config.AdapterConfig{{
		ID:      "orders",
		BaseURL: base + "/svc",
		Tools: []config.ToolConfig{{
			Name:   "create_order",
			Method: http.MethodPost,
			Paths:  []string{"/v2/orders", "/orders"},
		}},
	}, {
		ID:      "crm",
		Type:    "mcp",
		BaseURL: base + "/mcp",
	}}
	cfg.Discovery.Enabled = true
	cfg.Discovery.PlatformURL = base
	cfg.Discovery.Sources = []config.SourceConfig{{Location: base + "/docs/functions.md", Format: "markdown"}}
	cfg.Providers.Enabled = true
	cfg.Providers.List = []config.ProviderConfig{
		{Name: "local", Kind: "local", BaseURL: base + "/local", Model: "m"},
		{Name: "cloud", Kind: "remote", BaseURL: base + "/cloud", Model: "m"},
	}
	cfg.Providers.Policy.Default = "local"
	cfg.Providers.Policy.Fallback = "cloud"
	return cfg
}

func TestBuildEndToEnd(t *testing.T) {
	up := &fakeUpstream{}
	upstreamSrv := httptest.NewServer(up.handler())
	defer upstreamSrv.Close()

	cfg := buildConfig(upstreamSrv.URL)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	app, err := Build(context.Background(), &cfg, BuildOptions{Version: "test", SkipWarmup: true})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	}()

	if got := app.Registry.Len(); got != 4 {
		t.Fatalf("Registry.Len() = %d, want 4", got)
	}
	if app.Discovery == nil {
		t.Fatal("discovery adapter not exposed on App")
	}

	srv := httptest.NewServer(app.Gateway.Handler())
	defer srv.Close()
	key := http.Header{"X-Api-Key": {buildKey}}

	t.Run("rest fallback path", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/invoke",
			`{"tool":"orders.create_order","args":{"item":"book"}}`, key)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		res := decodeResult(t, data)
		got, _ := res.Data.(map[string]any)
		if got["id"] != "o-1" || got["item"] != "book" {
			t.Errorf("data = %v", res.Data)
		}
		if up.v2Hits.Load() != 1 {
			t.Errorf("v2 path hit %d times, want 1", up.v2Hits.Load())
		}
		if k, _ := up.legacyKey.Load().(string); k != buildKey {
			t.Errorf("forwarded X-API-Key = %q", k)
		}
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/invoke",
			`{"tool":"orders.create_order","args":{}}`, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, body %s", resp.StatusCode, data)
		}
	})

	t.Run("discovered function", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/tools/send-sms", `{"to":"+1"}`, key)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		res := decodeResult(t, data)
		got, _ := res.Data.(map[string]any)
		if got["slug"] != "send-sms" {
			t.Errorf("data = %v", res.Data)
		}
		if k, _ := up.smsKey.Load().(string); k != buildKey {
			t.Errorf("forwarded X-API-Key = %q", k)
		}
	})

	t.Run("public discovered function", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/tools/status", `{}`, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, body %s", resp.StatusCode, data)
		}
	})

	t.Run("mcp upstream", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/invoke",
			`{"tool":"crm.lookup_customer","args":{"id":"c-1"}}`, key)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		res := decodeResult(t, data)
		got, _ := res.Data.(map[string]any)
		if got["plan"] != "pro" {
			t.Errorf("data = %v", res.Data)
		}
	})

	t.Run("provider fallback", func(t *testing.T) {
		resp, data := do(t, http.MethodPost, srv.URL+"/v1/invoke",
			`{"tool":"ai.chat","args":{"messages":[{"role":"user","content":"hi"}]}}`, key)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		res := decodeResult(t, data)
		got, _ := res.Data.(map[string]any)
		if got["content"] != "hello" || got["served_by"] != "cloud" || got["fallback_from"] != "local" {
			t.Errorf("data = %v", res.Data)
		}
	})

	t.Run("catalog lists every adapter", func(t *testing.T) {
		resp, data := do(t, http.MethodGet, srv.URL+"/v1/tools", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var list toolList
		if err := json.Unmarshal(data, &list); err != nil {
			t.Fatal(err)
		}
		names := map[string]bool{}
		for _, td := range list.Tools {
			names[td.Name] = true
		}
		for _, want := range []string{"orders.create_order", "functions.send-sms", "functions.status", "ai.chat", "crm.lookup_customer"} {
			if !names[want] {
				t.Errorf("catalog missing %q (have %v)", want, names)
			}
		}
	})

	t.Run("readiness", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, srv.URL+"/readyz", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestBuildRejectsBadAdapter(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Delegate = config.DelegateConfig{Type: "static"}
	cfg.Adapters = []config.AdapterConfig{{ID: "x", BaseURL: "http://127.0.0.1:1", Convention: "sideways"}}

	if _, err := Build(context.Background(), &cfg, BuildOptions{SkipWarmup: true}); err == nil {
		t.Fatal("Build() = nil, want convention error")
	}
}

func TestBuildWithoutAuth(t *testing.T) {
	up := &fakeUpstream{}
	upstreamSrv := httptest.NewServer(up.handler())
	defer upstreamSrv.Close()

	cfg := buildConfig(upstreamSrv.URL)
	cfg.Gateway.RequireAuth = false
	app, err := Build(context.Background(), &cfg, BuildOptions{SkipWarmup: true})
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}
	defer app.Close()

	srv := httptest.NewServer(app.Gateway.Handler())
	defer srv.Close()
	resp, data := do(t, http.MethodPost, srv.URL+"/v1/invoke",
		`{"tool":"orders.create_order","args":{"item":"pen"}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, body %s", resp.StatusCode, data)
	}
}
