package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/toolgate/pkg/api"
)

// Recovery converts a panic below it into a server_error. The panic value
// and stack are logged; the caller only sees a generic message.
func Recovery() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.InvokeRequest) (data any, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic during invocation",
						"tool", req.Tool,
						"request_id", RequestIDFromContext(ctx),
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					data = nil
					retErr = api.NewServerError("internal server error")
				}
			}()
			return next.Invoke(ctx, req)
		})
	}
}
