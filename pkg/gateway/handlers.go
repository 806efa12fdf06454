package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/transport"
)

// invokeBody is the body of POST /v1/invoke.
type invokeBody struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// handleInvoke handles POST /v1/invoke.
func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body invokeBody
	if apiErr := decodeJSON(r, &body); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	g.invoke(w, r, body.Tool, body.Args)
}

// handleInvokeTool handles POST /v1/tools/{name}. The body, if any, is the
// argument object.
func (g *Gateway) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if apiErr := decodeJSON(r, &args); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	g.invoke(w, r, r.PathValue("name"), args)
}

func (g *Gateway) invoke(w http.ResponseWriter, r *http.Request, tool string, args map[string]any) {
	callID := r.Header.Get(CallIDHeader)
	if !api.ValidateCallID(callID) {
		callID = api.NewCallID()
	}
	w.Header().Set(CallIDHeader, callID)

	data, err := g.invoker.Invoke(r.Context(), &api.InvokeRequest{
		Tool:    tool,
		Args:    args,
		Headers: r.Header,
		CallID:  callID,
	})

	var res *api.InvokeResult
	if err != nil {
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			apiErr = api.NewServerError("internal server error")
		}
		res = api.Failed(apiErr)
	} else {
		res = api.Succeeded(data)
	}
	res.CallID = callID
	transport.WriteResult(w, res)
}

// toolList is the body of GET /v1/tools.
type toolList struct {
	Tools []api.ToolDescriptor `json:"tools"`
}

// handleListTools handles GET /v1/tools with optional ?category= and
// ?tag= filters.
func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	tag := r.URL.Query().Get("tag")

	out := toolList{Tools: []api.ToolDescriptor{}}
	for _, td := range g.dispatcher.Registry().Tools(r.Context()) {
		if category != "" && !strings.EqualFold(td.Category, category) {
			continue
		}
		if tag != "" && !td.HasTag(tag) {
			continue
		}
		td.InputSchema = td.Schema()
		out.Tools = append(out.Tools, td)
	}
	transport.WriteJSON(w, http.StatusOK, out)
}

// handleListAdapters handles GET /v1/adapters: per-adapter health and
// call statistics.
func (g *Gateway) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"adapters": g.dispatcher.Registry().Health(r.Context()),
	})
}

// refresher is implemented by adapters with a refreshable catalog.
type refresher interface {
	Refresh(ctx context.Context) error
}

// handleRefreshAdapter handles POST /v1/adapters/{id}/refresh.
func (g *Gateway) handleRefreshAdapter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := g.dispatcher.Registry().Adapter(id)
	if !ok {
		transport.WriteAPIError(w, &api.APIError{
			Type:    api.ErrorTypeInvalidRequest,
			Message: "unknown adapter " + id,
			Status:  http.StatusNotFound,
		})
		return
	}
	rf, ok := a.(refresher)
	if !ok {
		transport.WriteAPIError(w, api.NewInvalidRequestError("adapter "+id+" has no refreshable catalog"))
		return
	}
	if err := rf.Refresh(r.Context()); err != nil {
		transport.WriteAPIError(w, g.dispatcher.errors.ToAPIError("", err))
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"adapter": id,
		"tools":   len(a.Tools(r.Context())),
	})
}

// handleCancelCall handles DELETE /v1/calls/{id}.
func (g *Gateway) handleCancelCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateCallID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("invalid call id"))
		return
	}
	if !g.dispatcher.Cancel(id) {
		transport.WriteAPIError(w, &api.APIError{
			Type:    api.ErrorTypeInvalidRequest,
			Message: "call is not in flight",
			Status:  http.StatusNotFound,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz reports ready once at least one adapter is registered and
// the optional readiness check passes.
func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	reg := g.dispatcher.Registry()
	if reg.Len() == 0 {
		transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no adapters registered"})
		return
	}
	if g.cfg.Ready != nil {
		if err := g.cfg.Ready(r.Context()); err != nil {
			g.cfg.Logger.Warn("readiness check failed", "error", err)
			transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	ids := make([]string, 0, reg.Len())
	for _, a := range reg.Adapters() {
		ids = append(ids, a.ID())
	}
	slices.Sort(ids)
	transport.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready", "adapters": ids})
}

// decodeJSON decodes an optional JSON body. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) *api.APIError {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return api.NewInvalidRequestError("Content-Type must be application/json")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &api.APIError{
				Type:    api.ErrorTypeInvalidRequest,
				Message: "request body too large",
				Status:  http.StatusRequestEntityTooLarge,
			}
		}
		return api.NewInvalidRequestError("invalid JSON body: " + err.Error())
	}
	return nil
}
