// Package provider routes chat requests to local and remote inference
// backends under an operator policy.
//
// The policy is fixed at startup. A request resolves to one provider name:
// the managed provider if the operator forced one, else the caller's choice
// when request overrides are enabled, else the default. The resolved name
// must be in the allowed set. The sentinel "auto" tries the local provider
// first and falls back once to a secondary provider; explicit providers fall
// back once to the configured fallback. Every response names the provider
// that actually served it.
package provider
