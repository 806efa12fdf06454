package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/toolgate/pkg/debug"
)

// StatusError is returned when the upstream answered with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s %s returned status %d", e.Method, e.URL, e.Status)
}

// Message extracts a human readable message from the upstream body.
// It understands {"error":"..."}, {"error":{"message":"..."}} and
// {"message":"..."} shapes and falls back to the trimmed raw body.
func (e *StatusError) Message() string {
	if len(e.Body) == 0 {
		return http.StatusText(e.Status)
	}

	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &shaped); err == nil {
		if len(shaped.Error) > 0 {
			var s string
			if json.Unmarshal(shaped.Error, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shaped.Error, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}

	return debug.Truncate(strings.TrimSpace(string(e.Body)), 512)
}

// IsRoutingMiss reports whether the status indicates the path itself is
// wrong (404 Not Found, 405 Method Not Allowed) rather than a business
// failure.
func (e *StatusError) IsRoutingMiss() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusMethodNotAllowed
}

// UnavailableError is returned when the upstream could not be reached,
// including timeouts and cancelled requests.
type UnavailableError struct {
	Method string
	URL    string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("upstream %s %s unavailable: %v", e.Method, e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
