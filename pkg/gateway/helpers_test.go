package gateway

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/auth/apikey"
	"github.com/rhuss/toolgate/pkg/registry"
	"github.com/rhuss/toolgate/pkg/storage"
	"github.com/rhuss/toolgate/pkg/storage/memory"
)

// modernAdapter is a fake modern adapter whose behavior is set per test.
type modernAdapter struct {
	id       string
	tools    []api.ToolDescriptor
	invokeFn func(ctx context.Context, tool string, args map[string]any, cc adapter.CallContext) (any, error)
}

func (m *modernAdapter) ID() string                                 { return m.id }
func (m *modernAdapter) Capabilities() []string                     { return []string{"test"} }
func (m *modernAdapter) Convention() adapter.CallConvention         { return adapter.Modern }
func (m *modernAdapter) Tools(context.Context) []api.ToolDescriptor { return m.tools }
func (m *modernAdapter) Health(context.Context) adapter.Health {
	return adapter.Health{Healthy: true}
}

func (m *modernAdapter) InvokeTool(ctx context.Context, tool string, args map[string]any, cc adapter.CallContext) (any, error) {
	if m.invokeFn != nil {
		return m.invokeFn(ctx, tool, args, cc)
	}
	return map[string]any{"tool": tool, "args": args}, nil
}

// refreshableAdapter counts Refresh calls.
type refreshableAdapter struct {
	modernAdapter

	mu        sync.Mutex
	refreshes int
	err       error
}

func (r *refreshableAdapter) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	return r.err
}

func (r *refreshableAdapter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

func (r *refreshableAdapter) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

const (
	testAPIKey    = "sk_service_key"
	testUserToken = "user-session-token"
	disabledToken = "disabled-user-token"
)

// testGuard admits testAPIKey (subject "svc"), testUserToken (subject
// "alice") and disabledToken, whose principal record is disabled.
func testGuard(t *testing.T) *auth.Guard {
	t.Helper()
	store, err := apikey.New([]apikey.RawKeyEntry{
		{Key: testAPIKey, Identity: auth.Identity{Subject: "svc"}, Kind: auth.KindAPIKey},
		{Key: testUserToken, Identity: auth.Identity{Subject: "alice", ServiceTier: "free"}, Kind: auth.KindBearer},
		{Key: disabledToken, Identity: auth.Identity{Subject: "mallory"}, Kind: auth.KindBearer},
	})
	if err != nil {
		t.Fatalf("apikey.New: %v", err)
	}
	chain, err := auth.NewChain(auth.ChainConfig{Delegate: store})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	principals := memory.New(
		storage.Principal{Subject: "alice", TenantID: "org-1", ServiceTier: "premium"},
		storage.Principal{Subject: "mallory", Disabled: true},
	)
	return auth.NewGuard(chain, nil, principals)
}

// testRegistry registers a "svc" adapter with a protected tool "echo", a
// public tool "ping" and, when block is non-nil, a tool "slow" that waits
// for cancellation after signalling block.
func testRegistry(t *testing.T, block chan<- string) (*registry.Registry, *modernAdapter) {
	t.Helper()
	a := &modernAdapter{
		id: "svc",
		tools: []api.ToolDescriptor{
			{Name: "echo", Description: "Echo arguments", Category: "util"},
			{Name: "ping", Description: "Liveness", Category: "util", Tags: []string{api.TagPublic}},
			{Name: "slow", Description: "Blocks until cancelled", Category: "test"},
		},
	}
	a.invokeFn = func(ctx context.Context, tool string, args map[string]any, cc adapter.CallContext) (any, error) {
		switch tool {
		case "ping":
			return "pong", nil
		case "slow":
			if block != nil {
				block <- cc.CallID
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{
			"args":      args,
			"principal": cc.Principal,
			"auth":      cc.Header("Authorization"),
			"api_key":   cc.Header("X-API-Key"),
		}, nil
	}

	reg := registry.New()
	if err := reg.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg, a
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
