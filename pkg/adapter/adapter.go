// Package adapter defines the contract every backing service exposes to
// the gateway: a list of named tools, an invoke operation, and a health
// probe.
//
// Two calling conventions exist. Legacy adapters receive only the tool name
// and arguments. Modern adapters additionally receive the call context,
// which carries the forwarded inbound headers and the verified principal.
// An adapter declares its convention explicitly through Convention(); the
// registry dispatches on that tag and never probes for methods at call time.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/toolgate/pkg/api"
)

// ErrUnknownTool is returned by adapters asked to invoke a tool they do
// not expose, including one that left the catalog after it was resolved.
var ErrUnknownTool = errors.New("unknown tool")

// CallConvention selects how the registry invokes an adapter.
type CallConvention int

const (
	// Legacy adapters implement LegacyInvoker.
	Legacy CallConvention = iota

	// Modern adapters implement ModernInvoker.
	Modern
)

// String returns the config spelling of the convention.
func (c CallConvention) String() string {
	switch c {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	default:
		return fmt.Sprintf("convention(%d)", int(c))
	}
}

// ParseConvention parses "legacy" or "modern". The empty string selects Modern.
func ParseConvention(s string) (CallConvention, error) {
	switch s {
	case "legacy":
		return Legacy, nil
	case "modern", "":
		return Modern, nil
	default:
		return Modern, fmt.Errorf("unknown call convention %q", s)
	}
}

// Adapter is one backing service as seen by the registry.
//
// Implementations must be safe for concurrent use. Tools must return an
// immutable snapshot: callers may hold on to the slice.
type Adapter interface {
	// ID returns the registry-unique adapter identifier.
	ID() string

	// Capabilities returns free-form capability labels (e.g. "payments").
	Capabilities() []string

	// Convention declares which invoker interface the adapter implements.
	Convention() CallConvention

	// Tools returns the tools the adapter currently exposes.
	Tools(ctx context.Context) []api.ToolDescriptor

	// Health probes the backing service.
	Health(ctx context.Context) Health
}

// LegacyCall is the single argument passed to legacy adapters.
type LegacyCall struct {
	Tool string
	Args map[string]any
}

// LegacyInvoker is implemented by adapters declaring the Legacy convention.
type LegacyInvoker interface {
	Invoke(ctx context.Context, call LegacyCall) (any, error)
}

// CallContext carries per-request data for modern adapters.
type CallContext struct {
	// Headers holds the forwarded inbound headers (canonical keys).
	Headers map[string]string

	// Principal is the verified caller identity, empty when the tool is public.
	Principal string

	// CallID identifies the dispatch call for log correlation.
	CallID string
}

// Header returns the forwarded header value for key, matched case-insensitively.
func (c CallContext) Header(key string) string {
	if v, ok := c.Headers[key]; ok {
		return v
	}
	for k, v := range c.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// ModernInvoker is implemented by adapters declaring the Modern convention.
type ModernInvoker interface {
	InvokeTool(ctx context.Context, tool string, args map[string]any, cc CallContext) (any, error)
}

// Health is the result of a health probe.
type Health struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}
