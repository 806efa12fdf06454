package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/registry"
	"github.com/rhuss/toolgate/pkg/transport"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Guard admits callers of non-public tools. Nil disables verification
	// entirely (require_auth: false).
	Guard *auth.Guard

	// ForwardHeaders lists inbound headers copied into the call context.
	ForwardHeaders []string

	// Credentials controls how the caller's credential is recognized
	// for forwarding.
	Credentials auth.CredentialOptions

	// InFlight tracks running calls. A fresh registry is used when nil.
	InFlight *transport.InFlightRegistry

	Errors ErrorMapper
}

// Dispatcher resolves, admits and invokes tool calls. It implements
// transport.Invoker and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	guard    *auth.Guard
	forward  []string
	creds    auth.CredentialOptions
	inflight *transport.InFlightRegistry
	errors   ErrorMapper
}

var _ transport.Invoker = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over reg.
func NewDispatcher(reg *registry.Registry, cfg DispatcherConfig) *Dispatcher {
	inflight := cfg.InFlight
	if inflight == nil {
		inflight = transport.NewInFlightRegistry()
	}
	return &Dispatcher{
		registry: reg,
		guard:    cfg.Guard,
		forward:  cfg.ForwardHeaders,
		creds:    cfg.Credentials,
		inflight: inflight,
		errors:   cfg.Errors,
	}
}

// InFlight returns the registry of running calls.
func (d *Dispatcher) InFlight() *transport.InFlightRegistry { return d.inflight }

// Registry returns the adapter registry.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }

// Invoke dispatches one call. Failures are always returned as
// *api.APIError.
func (d *Dispatcher) Invoke(ctx context.Context, req *api.InvokeRequest) (any, error) {
	if strings.TrimSpace(req.Tool) == "" {
		return nil, api.NewInvalidRequestError("tool is required")
	}

	target, err := d.registry.Resolve(ctx, req.Tool)
	if err != nil {
		return nil, d.errors.ToAPIError(req.Tool, err)
	}

	var principal string
	if d.guard != nil && !target.Tool.HasTag(api.TagPublic) {
		id, apiErr := d.guard.Admit(ctx, req.Headers)
		if apiErr != nil {
			return nil, apiErr
		}
		ctx = auth.WithIdentity(ctx, id)
		principal = id.Subject
	}

	if req.CallID == "" {
		req.CallID = api.NewCallID()
	}
	ctx, release := d.inflight.Track(ctx, req.CallID)
	defer release()

	cc := adapter.CallContext{
		Headers:   d.forwardHeaders(req.Headers),
		Principal: principal,
		CallID:    req.CallID,
	}

	debug.Log("gateway", "dispatch",
		"tool", target.QualifiedName(),
		"call_id", req.CallID,
		"public", target.Tool.HasTag(api.TagPublic),
	)

	data, err := d.registry.Invoke(ctx, target, req.Args, cc)
	if err != nil {
		return nil, d.errors.ToAPIError(req.Tool, err)
	}
	return data, nil
}

// Cancel cancels a running call. It reports false when the call is not
// (or no longer) in flight.
func (d *Dispatcher) Cancel(callID string) bool {
	return d.inflight.Cancel(callID)
}

// forwardHeaders copies the configured inbound headers plus every form of
// the caller's credential. A bearer token reclassified as an API key is
// forwarded both as Authorization and as the API-key header.
func (d *Dispatcher) forwardHeaders(in http.Header) map[string]string {
	out := make(map[string]string, len(d.forward)+2)
	for _, name := range d.forward {
		if v := in.Get(name); v != "" {
			out[http.CanonicalHeaderKey(name)] = v
		}
	}
	cred := auth.ExtractCredential(in, d.creds)
	for k, v := range cred.Headers {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
