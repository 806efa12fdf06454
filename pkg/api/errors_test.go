package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestAPIErrorInterface(t *testing.T) {
	var _ error = &APIError{}
}

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with code",
			&APIError{Type: ErrorTypeUpstreamRejected, Code: "insufficient_funds", Message: "declined"},
			"upstream_rejected: declined (code: insufficient_funds)",
		},
		{
			"without code",
			&APIError{Type: ErrorTypeServerError, Message: "internal failure"},
			"server_error: internal failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want int
	}{
		{"unknown tool", NewUnknownToolError("x"), http.StatusNotFound},
		{"verification", NewVerificationFailedError(0), http.StatusUnauthorized},
		{"verification explicit", NewVerificationFailedError(http.StatusServiceUnavailable), http.StatusServiceUnavailable},
		{"provider not allowed", NewProviderNotAllowedError("openai"), http.StatusForbidden},
		{"adapter unavailable", NewAdapterUnavailableError("timeout"), http.StatusBadGateway},
		{"upstream passthrough", NewUpstreamRejectedError(422, "bad amount"), 422},
		{"too many", NewTooManyRequestsError("slow down"), http.StatusTooManyRequests},
		{"invalid", NewInvalidRequestError("bad"), http.StatusBadRequest},
		{"unknown type", &APIError{Type: ErrorType("nope")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVerificationErrorIsGeneric(t *testing.T) {
	err := NewVerificationFailedError(http.StatusUnauthorized)
	if err.Message != "authentication required" {
		t.Errorf("Message = %q, want generic message", err.Message)
	}
}

func TestInvokeResultJSON(t *testing.T) {
	data, err := json.Marshal(Failed(NewUnknownToolError("pay")))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("success = %v, want false", decoded["success"])
	}
	if _, ok := decoded["data"]; ok {
		t.Error("data should be omitted on failure")
	}
	errObj, ok := decoded["error"].(map[string]any)
	if !ok {
		t.Fatalf("error missing: %s", data)
	}
	if errObj["type"] != "unknown_tool" {
		t.Errorf("error.type = %v, want unknown_tool", errObj["type"])
	}
}
