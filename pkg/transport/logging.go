package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/storage"
)

// Logging emits one structured entry per invocation.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.InvokeRequest) (any, error) {
			start := time.Now()

			data, err := next.Invoke(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("tool", req.Tool),
				slog.Duration("duration", time.Since(start)),
			}
			if tenant := storage.TenantFromContext(ctx); tenant != "" {
				attrs = append(attrs, slog.String("tenant", tenant))
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelWarn, "invocation failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "invocation completed", attrs...)
			}
			return data, err
		})
	}
}
