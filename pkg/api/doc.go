// Package api defines the wire types shared by the toolgate gateway.
//
// Every backing adapter publishes [ToolDescriptor] values, the gateway accepts
// an [InvokeRequest] for a tool, and every response, success or failure, is
// an [InvokeResult]. Failures carry an [APIError] whose Type is one of the
// gateway's error categories (unknown_tool, adapter_unavailable,
// upstream_rejected, verification_failed, provider_not_allowed, ...).
//
// The package performs no I/O.
package api
