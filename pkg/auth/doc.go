// Package auth verifies inbound credentials and gates protected routes.
//
// Verification is a strictly sequential chain. The credential is extracted
// and classified first (bearer token or API key). A delegate service is
// asked to verify it; a definitive rejection from the delegate may be
// re-checked against a secondary token issuer, but only for bearer tokens
// whose shape matches that issuer and only when enabled. API keys never
// leave the delegate path.
//
// The Guard combines verification with per-tier rate limiting and the
// principal store so that HTTP middleware and tool dispatch share one
// admission path.
package auth
