// Package registry holds the gateway's adapters keyed by id and routes tool
// invocations to them.
//
// Tool names are resolved in two forms. A qualified name "<adapter>.<tool>"
// addresses one adapter directly and always takes precedence. A bare name
// resolves to the first adapter, in registration order, that exposes a tool
// of that name.
//
// The registry state is an immutable snapshot replaced atomically on every
// Register call, so lookups never take a lock and never observe a
// partially-registered adapter. Per-adapter call statistics are atomic
// counters that live outside the snapshot.
package registry
