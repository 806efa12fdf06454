package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/toolgate/pkg/api"
)

// RequestIDHeader carries the request id in and out of the gateway.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id unless the context already carries one
// (set by the HTTP layer from X-Request-ID).
func RequestID() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.InvokeRequest) (any, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Invoke(ctx, req)
		})
	}
}
