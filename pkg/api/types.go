package api

import (
	"encoding/json"
	"net/http"
	"slices"
)

// ToolDescriptor describes one named operation an adapter can perform.
// Descriptors are immutable once published.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// TagPublic marks a tool that may be invoked without verified credentials.
const TagPublic = "public"

// HasTag reports whether the descriptor carries the given capability tag.
func (d ToolDescriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// DefaultInputSchema is used when an adapter does not declare a schema.
var DefaultInputSchema = json.RawMessage(`{"type":"object","additionalProperties":true}`)

// Schema returns the descriptor's input schema or the permissive default.
func (d ToolDescriptor) Schema() json.RawMessage {
	if len(d.InputSchema) == 0 {
		return DefaultInputSchema
	}
	return d.InputSchema
}

// InvokeRequest is the inbound, transport-agnostic dispatch call.
// Headers are the caller's inbound headers; CallID is assigned by the
// transport before dispatch.
type InvokeRequest struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Headers http.Header    `json:"-"`
	CallID  string         `json:"-"`
}

// InvokeResult is the uniform response envelope for a dispatch call.
type InvokeResult struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
}

// Succeeded wraps adapter output in a successful result.
func Succeeded(data any) *InvokeResult {
	return &InvokeResult{Success: true, Data: data}
}

// Failed wraps an APIError in a failed result.
func Failed(err *APIError) *InvokeResult {
	return &InvokeResult{Success: false, Error: err}
}
