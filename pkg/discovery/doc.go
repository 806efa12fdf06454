// Package discovery builds a tool catalog from external documentation.
//
// A discovery pass reads every configured source (a URL or a local file),
// extracts structured rows from markdown or HTML tables and free-text
// mentions of function paths, and merges the results with first-seen-wins
// deduplication by slug. The merged set becomes one generation that is
// published with a single atomic pointer swap; readers always see a complete
// generation.
//
// The Adapter serves the current generation as its tool list and refreshes
// it lazily once the TTL has elapsed. A failed refresh keeps the previous
// generation. Platform health is cached separately with its own short TTL.
package discovery
