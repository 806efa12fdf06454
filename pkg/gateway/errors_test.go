package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/discovery"
	"github.com/rhuss/toolgate/pkg/provider"
	"github.com/rhuss/toolgate/pkg/registry"
	"github.com/rhuss/toolgate/pkg/upstream"
)

func TestErrorMapper(t *testing.T) {
	rejected := &upstream.StatusError{
		Method: http.MethodPost,
		URL:    "http://billing/charges",
		Status: http.StatusUnprocessableEntity,
		Body:   []byte(`{"error":"card declined"}`),
	}
	failed := &upstream.StatusError{
		Method: http.MethodPost,
		URL:    "http://billing/charges",
		Status: http.StatusInternalServerError,
		Body:   []byte(`{"error":"db down at 10.0.0.5"}`),
	}
	unreachable := &upstream.UnavailableError{
		Method: http.MethodGet,
		URL:    "http://billing/health",
		Err:    errors.New("connection refused"),
	}

	tests := []struct {
		name       string
		err        error
		expose     bool
		wantType   api.ErrorType
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "api error passes through",
			err:        api.NewForbiddenError("nope"),
			wantType:   api.ErrorTypeForbidden,
			wantStatus: http.StatusForbidden,
			wantMsg:    "nope",
		},
		{
			name:       "unknown tool",
			err:        fmt.Errorf("%w: %q", registry.ErrUnknownTool, "x"),
			wantType:   api.ErrorTypeUnknownTool,
			wantStatus: http.StatusNotFound,
			wantMsg:    `unknown tool "billing.charge"`,
		},
		{
			name:       "function left the catalog after resolve",
			err:        fmt.Errorf("discovery: %w: function %q is not in the current catalog", adapter.ErrUnknownTool, "send-sms"),
			wantType:   api.ErrorTypeUnknownTool,
			wantStatus: http.StatusNotFound,
			wantMsg:    `unknown tool "billing.charge"`,
		},
		{
			name:       "business rejection keeps status",
			err:        rejected,
			wantType:   api.ErrorTypeUpstreamRejected,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "Unprocessable Entity",
		},
		{
			name:       "business rejection exposed",
			err:        rejected,
			expose:     true,
			wantType:   api.ErrorTypeUpstreamRejected,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "card declined",
		},
		{
			name:       "upstream 5xx hides body",
			err:        failed,
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream failed",
		},
		{
			name:       "upstream 5xx exposed",
			err:        failed,
			expose:     true,
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "db down at 10.0.0.5",
		},
		{
			name:       "unreachable",
			err:        unreachable,
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream unavailable",
		},
		{
			name:       "cancelled",
			err:        &upstream.UnavailableError{Err: context.Canceled},
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: StatusClientClosedRequest,
			wantMsg:    "call cancelled",
		},
		{
			name:       "deadline",
			err:        fmt.Errorf("calling: %w", context.DeadlineExceeded),
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "upstream timed out",
		},
		{
			name:       "provider not allowed",
			err:        fmt.Errorf("%w: %q", provider.ErrProviderNotAllowed, "cloud"),
			wantType:   api.ErrorTypeProviderNotAllowed,
			wantStatus: http.StatusForbidden,
			wantMsg:    "cloud",
		},
		{
			name:       "all providers failed wins over inner status",
			err:        fmt.Errorf("%w: local: %w", provider.ErrAllProvidersFailed, rejected),
			wantType:   api.ErrorTypeAdapterUnavailable,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "all providers failed",
		},
		{
			name:       "discovery sources unreadable",
			err:        fmt.Errorf("%w: all failed", discovery.ErrSourceUnreadable),
			wantType:   api.ErrorTypeDiscoverySourceError,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "no discovery source could be read",
		},
		{
			name:       "anything else is generic",
			err:        errors.New("secret detail"),
			wantType:   api.ErrorTypeServerError,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorMapper{ExposeInternals: tt.expose}.ToAPIError("billing.charge", tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s", got.Type, tt.wantType)
			}
			if got.HTTPStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.HTTPStatus(), tt.wantStatus)
			}
			if !strings.Contains(got.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestErrorMapper_Nil(t *testing.T) {
	if got := (ErrorMapper{}).ToAPIError("t", nil); got != nil {
		t.Errorf("ToAPIError(nil) = %v, want nil", got)
	}
}
