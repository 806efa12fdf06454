package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/toolgate/pkg/api"
)

func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    *api.APIError
		status int
	}{
		{"unknown tool", api.NewUnknownToolError("nope"), http.StatusNotFound},
		{"upstream rejected keeps status", api.NewUpstreamRejectedError(422, "bad amount"), 422},
		{"verification failed", api.NewVerificationFailedError(http.StatusUnauthorized), http.StatusUnauthorized},
		{"server error", api.NewServerError("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAPIError(rec, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body api.InvokeResult
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error == nil || body.Error.Type != tt.err.Type {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestWriteResult_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResult(rec, &api.InvokeResult{Success: true, Data: map[string]any{"id": "x"}, CallID: "call_1"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["success"] != true || body["call_id"] != "call_1" {
		t.Errorf("body = %v", body)
	}
}
