package openaicompat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rhuss/toolgate/pkg/upstream"
)

// MapHTTPError converts a non-2xx backend response into an
// upstream.StatusError carrying the backend's error message.
func MapHTTPError(method, url string, resp *http.Response) *upstream.StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if msg := ExtractErrorMessage(body); msg != "" {
		body, _ = json.Marshal(map[string]string{"error": msg})
	}
	return &upstream.StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: body}
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS failure) into an upstream.UnavailableError.
func MapNetworkError(method, url string, err error) *upstream.UnavailableError {
	return &upstream.UnavailableError{Method: method, URL: url, Err: err}
}

// ExtractErrorMessage parses a ChatErrorResponse body and returns its message.
func ExtractErrorMessage(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
