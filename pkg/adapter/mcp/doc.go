// Package mcp implements an adapter for upstream Model Context Protocol
// servers. The server's tools are listed over a shared client session and
// exposed through the registry; calls use the legacy convention.
package mcp
