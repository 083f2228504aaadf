// Package mcp provides an MCP (Model Context Protocol) server adapter for Sercha Connect.
// It lets AI assistants list connections and call provider methods on them.
package mcp

import "errors"

var (
	// ErrMissingRegistry is returned when the provider registry is not provided.
	ErrMissingRegistry = errors.New("mcp: provider registry is required")

	// ErrMissingInvoker is returned when the invoker is not provided.
	ErrMissingInvoker = errors.New("mcp: invoker is required")

	// ErrMissingConnections is returned when the connection service is not provided.
	ErrMissingConnections = errors.New("mcp: connection service is required")

	// ErrMissingOrg is returned when no organization is selected.
	ErrMissingOrg = errors.New("mcp: organization is required")
)
