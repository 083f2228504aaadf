package mcp

import (
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Registry describes providers and their methods.
	Registry driving.ProviderRegistry

	// Connections lists the organization's connections.
	Connections driving.ConnectionService

	// Invoker runs provider methods with refresh-and-retry.
	Invoker driving.Invoker

	// OrgID is the organization every tool acts for.
	OrgID string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	switch {
	case p.Registry == nil:
		return ErrMissingRegistry
	case p.Connections == nil:
		return ErrMissingConnections
	case p.Invoker == nil:
		return ErrMissingInvoker
	case p.OrgID == "":
		return ErrMissingOrg
	}
	return nil
}
