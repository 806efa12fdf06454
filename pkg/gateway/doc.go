// Package gateway composes the registry, the verification chain and the
// HTTP surface into the toolgate dispatcher.
//
// A call flows through one path regardless of how it arrives (REST or
// MCP): resolve the tool, admit the caller unless the tool is public,
// build the call context from the forwarded headers, dispatch through the
// registry, and normalize any failure into an api.APIError.
package gateway
