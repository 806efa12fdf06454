// Package transport defines the invoker contract and middleware chain
// that sit between the HTTP routes and tool dispatch.
//
// An Invoker executes one api.InvokeRequest. Middleware wraps an Invoker
// with cross-cutting behavior: panic recovery, request id assignment and
// structured logging via log/slog. The package also owns the JSON envelope
// written to callers ({success, data, error}) and a registry of in-flight
// calls that can be cancelled explicitly.
package transport
