package transport

import (
	"context"

	"github.com/rhuss/toolgate/pkg/api"
)

// Invoker executes one tool invocation. A non-nil error describes a
// failed call; the HTTP layer turns it into an error envelope.
type Invoker interface {
	Invoke(ctx context.Context, req *api.InvokeRequest) (any, error)
}

// InvokerFunc is an adapter that allows using an ordinary function as an
// Invoker.
type InvokerFunc func(ctx context.Context, req *api.InvokeRequest) (any, error)

// Invoke calls f(ctx, req).
func (f InvokerFunc) Invoke(ctx context.Context, req *api.InvokeRequest) (any, error) {
	return f(ctx, req)
}
