package discovery

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/upstream"
)

type healthEntry struct {
	at     time.Time
	health adapter.Health
}

// healthCache memoizes the platform reachability probe.
type healthCache struct {
	ttl     time.Duration
	timeout time.Duration
	probe   func(ctx context.Context) adapter.Health
	now     func() time.Time

	current atomic.Pointer[healthEntry]
	group   singleflight.Group
}

func (h *healthCache) get(ctx context.Context) adapter.Health {
	if e := h.current.Load(); e != nil && h.now().Sub(e.at) < h.ttl {
		return e.health
	}
	v, _, _ := h.group.Do("health", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		res := h.probe(pctx)
		h.current.Store(&healthEntry{at: h.now(), health: res})
		return res, nil
	})
	return v.(adapter.Health)
}

// platformProbe treats any answer below 500 as reachable.
func platformProbe(client *upstream.Client, path string) func(ctx context.Context) adapter.Health {
	return func(ctx context.Context) adapter.Health {
		_, err := client.Do(ctx, upstream.Request{Method: http.MethodGet, Path: path})
		if err == nil {
			return adapter.Health{Healthy: true}
		}
		if status := upstream.StatusOf(err); status != 0 {
			if status < http.StatusInternalServerError {
				return adapter.Health{Healthy: true, Detail: fmt.Sprintf("status %d", status)}
			}
			return adapter.Health{Healthy: false, Detail: fmt.Sprintf("status %d", status)}
		}
		if ctx.Err() != nil {
			return adapter.Health{Healthy: false, Detail: "timeout"}
		}
		return adapter.Health{Healthy: false, Detail: "unreachable"}
	}
}
