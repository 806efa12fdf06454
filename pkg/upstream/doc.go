// Package upstream is the thin HTTP request executor adapters use to reach
// the services behind the gateway.
//
// The client never retries. Every request carries a timeout. Non-2xx
// responses come back as *StatusError and transport failures as
// *UnavailableError, so callers can tell a definitive upstream answer from
// an upstream that could not be reached.
//
// DoFallback implements the endpoint-fallback convention for tools whose
// endpoint was renamed: candidate paths are tried strictly in order and the
// next candidate is only attempted when the current one answers 404 or 405.
package upstream
