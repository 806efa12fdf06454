package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/discovery"
	"github.com/rhuss/toolgate/pkg/provider"
	"github.com/rhuss/toolgate/pkg/registry"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// StatusClientClosedRequest is reported when the caller went away or
// cancelled the call before the adapter answered.
const StatusClientClosedRequest = 499

// ErrorMapper turns dispatch failures into wire errors. With
// ExposeInternals set, upstream messages and raw error strings are passed
// through; otherwise each type gets a generic message.
type ErrorMapper struct {
	ExposeInternals bool
}

// ToAPIError normalizes err. An *api.APIError is returned unchanged.
func (m ErrorMapper) ToAPIError(tool string, err error) *api.APIError {
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var statusErr *upstream.StatusError
	var unavailable *upstream.UnavailableError

	switch {
	case errors.Is(err, registry.ErrUnknownTool):
		return api.NewUnknownToolError(tool)

	case errors.Is(err, context.Canceled):
		return &api.APIError{
			Type:    api.ErrorTypeAdapterUnavailable,
			Message: "call cancelled",
			Status:  StatusClientClosedRequest,
		}

	case errors.Is(err, context.DeadlineExceeded):
		return &api.APIError{
			Type:    api.ErrorTypeAdapterUnavailable,
			Message: m.message(err, "upstream timed out"),
			Status:  http.StatusGatewayTimeout,
		}

	case errors.Is(err, provider.ErrProviderNotAllowed):
		return &api.APIError{Type: api.ErrorTypeProviderNotAllowed, Message: err.Error()}

	case errors.Is(err, provider.ErrUnknownProvider):
		return api.NewInvalidRequestError(err.Error())

	case errors.Is(err, provider.ErrAllProvidersFailed):
		return api.NewAdapterUnavailableError(m.message(err, "all providers failed"))

	case errors.Is(err, discovery.ErrSourceUnreadable):
		return &api.APIError{
			Type:    api.ErrorTypeDiscoverySourceError,
			Message: m.message(err, "no discovery source could be read"),
			Status:  http.StatusBadGateway,
		}

	case errors.As(err, &statusErr):
		if statusErr.Status >= 400 && statusErr.Status < 500 {
			msg := http.StatusText(statusErr.Status)
			if m.ExposeInternals {
				msg = statusErr.Message()
			}
			return api.NewUpstreamRejectedError(statusErr.Status, msg)
		}
		return api.NewAdapterUnavailableError(m.message(
			fmt.Errorf("%w: %s", err, statusErr.Message()),
			"upstream failed",
		))

	case errors.As(err, &unavailable):
		return api.NewAdapterUnavailableError(m.message(err, "upstream unavailable"))
	}

	return api.NewServerError(m.message(err, "internal server error"))
}

func (m ErrorMapper) message(err error, generic string) string {
	if m.ExposeInternals {
		return err.Error()
	}
	return generic
}
