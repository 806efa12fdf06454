package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/registry"
)

func newTestGateway(t *testing.T, started chan<- string) (*Gateway, *httptest.Server) {
	t.Helper()
	reg, _ := testRegistry(t, started)
	guard := testGuard(t)
	d := NewDispatcher(reg, DispatcherConfig{Guard: guard})
	g := New(d, Config{
		Guard:              guard,
		PublicPaths:        []string{"/metrics"},
		CORSOriginSuffixes: []string{".example.com"},
		MetricsPath:        "/metrics",
		MCPPath:            "/mcp",
		Version:            "test",
	})
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, srv
}

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

// postStatus is safe to call from a goroutine; it returns 0 on transport
// errors.
func postStatus(url string, header http.Header) int {
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return 0
	}
	req.Header = header.Clone()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func decodeResult(t *testing.T, data []byte) api.InvokeResult {
	t.Helper()
	var res api.InvokeResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return res
}

func TestInvokeEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		header     http.Header
		wantStatus int
		wantType   api.ErrorType
	}{
		{
			name:       "public tool",
			path:       "/v1/invoke",
			body:       `{"tool":"svc.ping"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "protected tool with credential",
			path:       "/v1/invoke",
			body:       `{"tool":"svc.echo","args":{"q":"x"}}`,
			header:     bearer(testUserToken),
			wantStatus: http.StatusOK,
		},
		{
			name:       "protected tool without credential",
			path:       "/v1/invoke",
			body:       `{"tool":"svc.echo"}`,
			wantStatus: http.StatusUnauthorized,
			wantType:   api.ErrorTypeVerificationFailed,
		},
		{
			name:       "tool path form",
			path:       "/v1/tools/svc.echo",
			body:       `{"q":"x"}`,
			header:     bearer(testAPIKey),
			wantStatus: http.StatusOK,
		},
		{
			name:       "tool path form without body",
			path:       "/v1/tools/svc.ping",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown tool",
			path:       "/v1/tools/svc.nope",
			body:       `{}`,
			wantStatus: http.StatusNotFound,
			wantType:   api.ErrorTypeUnknownTool,
		},
		{
			name:       "malformed body",
			path:       "/v1/invoke",
			body:       `{"tool":`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
		},
		{
			name:       "args must be an object",
			path:       "/v1/tools/svc.ping",
			body:       `[1,2]`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, srv.URL+tt.path, tt.body, tt.header)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, data)
			}
			res := decodeResult(t, data)
			if tt.wantType == "" {
				if !res.Success {
					t.Fatalf("success = false: %s", data)
				}
				if !api.ValidateCallID(res.CallID) {
					t.Errorf("call_id = %q, want a call id", res.CallID)
				}
				if resp.Header.Get(CallIDHeader) != res.CallID {
					t.Errorf("%s header = %q, want %q", CallIDHeader, resp.Header.Get(CallIDHeader), res.CallID)
				}
				return
			}
			if res.Success || res.Error == nil || res.Error.Type != tt.wantType {
				t.Errorf("got %s, want error type %s", data, tt.wantType)
			}
		})
	}
}

func TestInvokeEndpoint_CallerChosenCallID(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	id := api.NewCallID()
	h := http.Header{}
	h.Set(CallIDHeader, id)
	_, data := do(t, http.MethodPost, srv.URL+"/v1/tools/svc.ping", "", h)
	if res := decodeResult(t, data); res.CallID != id {
		t.Errorf("call_id = %q, want caller's %q", res.CallID, id)
	}

	h.Set(CallIDHeader, "not-a-call-id")
	_, data = do(t, http.MethodPost, srv.URL+"/v1/tools/svc.ping", "", h)
	if res := decodeResult(t, data); res.CallID == "not-a-call-id" || !api.ValidateCallID(res.CallID) {
		t.Errorf("call_id = %q, want a generated id", res.CallID)
	}
}

func TestListTools(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp, data := do(t, http.MethodGet, srv.URL+"/v1/tools", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list toolList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 3 {
		t.Fatalf("tools = %d, want 3", len(list.Tools))
	}
	if list.Tools[0].Name != "svc.echo" {
		t.Errorf("first tool = %q, want qualified name", list.Tools[0].Name)
	}
	if len(list.Tools[0].InputSchema) == 0 {
		t.Error("input_schema missing, want default schema")
	}

	_, data = do(t, http.MethodGet, srv.URL+"/v1/tools?tag=public", "", nil)
	list = toolList{}
	json.Unmarshal(data, &list)
	if len(list.Tools) != 1 || list.Tools[0].Name != "svc.ping" {
		t.Errorf("tag filter = %+v, want only svc.ping", list.Tools)
	}

	_, data = do(t, http.MethodGet, srv.URL+"/v1/tools?category=UTIL", "", nil)
	list = toolList{}
	json.Unmarshal(data, &list)
	if len(list.Tools) != 2 {
		t.Errorf("category filter = %d tools, want 2", len(list.Tools))
	}
}

func TestListAdapters_Protected(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/adapters", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", resp.StatusCode)
	}

	do(t, http.MethodPost, srv.URL+"/v1/tools/svc.ping", "", nil)

	resp, data := do(t, http.MethodGet, srv.URL+"/v1/adapters", "", bearer(testUserToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Adapters []struct {
			ID     string `json:"id"`
			Tools  int    `json:"tools"`
			Health struct {
				Healthy bool `json:"healthy"`
			} `json:"health"`
			Stats struct {
				Calls uint64 `json:"calls"`
			} `json:"stats"`
		} `json:"adapters"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Adapters) != 1 || out.Adapters[0].ID != "svc" {
		t.Fatalf("adapters = %s", data)
	}
	a := out.Adapters[0]
	if a.Tools != 3 || !a.Health.Healthy || a.Stats.Calls < 1 {
		t.Errorf("adapter status = %+v", a)
	}
}

func TestRefreshAdapter(t *testing.T) {
	reg, _ := testRegistry(t, nil)
	fr := &refreshableAdapter{modernAdapter: modernAdapter{id: "functions"}}
	if err := reg.Register(fr); err != nil {
		t.Fatal(err)
	}
	g := New(NewDispatcher(reg, DispatcherConfig{}), Config{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/adapters/functions/refresh", "", nil)
	if resp.StatusCode != http.StatusOK || fr.count() != 1 {
		t.Errorf("status = %d refreshes = %d, want 200 and 1", resp.StatusCode, fr.count())
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/adapters/svc/refresh", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-refreshable status = %d, want 400", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/adapters/nope/refresh", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown adapter status = %d, want 404", resp.StatusCode)
	}

	fr.fail(errors.New("boom"))
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/adapters/functions/refresh", "", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failed refresh status = %d, want 500", resp.StatusCode)
	}
}

func TestCancelCall(t *testing.T) {
	started := make(chan string, 1)
	_, srv := newTestGateway(t, started)

	done := make(chan int, 1)
	go func() {
		done <- postStatus(srv.URL+"/v1/tools/svc.slow", bearer(testUserToken))
	}()

	var callID string
	select {
	case callID = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow call did not start")
	}

	resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/calls/"+callID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous cancel status = %d, want 401", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/calls/"+callID, "", bearer(testUserToken))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", resp.StatusCode)
	}

	select {
	case status := <-done:
		if status != StatusClientClosedRequest {
			t.Errorf("cancelled call status = %d, want %d", status, StatusClientClosedRequest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled call did not return")
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/calls/"+callID, "", bearer(testUserToken))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/calls/bogus", "", bearer(testUserToken))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", resp.StatusCode)
	}
}

func TestDrain(t *testing.T) {
	started := make(chan string, 1)
	g, srv := newTestGateway(t, started)

	done := make(chan int, 1)
	go func() {
		done <- postStatus(srv.URL+"/v1/tools/svc.slow", bearer(testUserToken))
	}()
	<-started

	if n := g.Drain(); n != 1 {
		t.Errorf("Drain() = %d, want 1", n)
	}
	select {
	case status := <-done:
		if status != StatusClientClosedRequest {
			t.Errorf("status = %d, want %d", status, StatusClientClosedRequest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drained call did not return")
	}
}

func TestHealthAndReadiness(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/readyz", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"svc"`) {
		t.Errorf("readyz = %d %s", resp.StatusCode, body)
	}

	empty := New(NewDispatcher(registry.New(), DispatcherConfig{}), Config{})
	rec := httptest.NewRecorder()
	empty.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("empty registry readyz = %d, want 503", rec.Code)
	}
}

func TestReadinessCheck(t *testing.T) {
	reg, _ := testRegistry(t, nil)
	g := New(NewDispatcher(reg, DispatcherConfig{}), Config{
		Ready: func(context.Context) error { return errors.New("database unreachable") },
	})
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "database") {
		t.Errorf("readiness detail leaked: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, nil)
	do(t, http.MethodPost, srv.URL+"/v1/tools/svc.ping", "", nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	for _, want := range []string{"toolgate_tool_calls_total", "toolgate_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestMetricsEndpointProtectedUnlessPublic(t *testing.T) {
	reg, _ := testRegistry(t, nil)
	guard := testGuard(t)
	g := New(NewDispatcher(reg, DispatcherConfig{Guard: guard}), Config{
		Guard:       guard,
		MetricsPath: "/metrics",
	})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, _ := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous metrics status = %d, want 401", resp.StatusCode)
	}
}

func TestCORSOnGateway(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	h := http.Header{}
	h.Set("Origin", "https://app.example.com")
	h.Set("Access-Control-Request-Method", "POST")
	resp, _ := do(t, http.MethodOptions, srv.URL+"/v1/invoke", "", h)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	h = http.Header{}
	h.Set("Origin", "https://evil.test")
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/tools/svc.ping", "", h)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for foreign origin, want none", got)
	}
}
