package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ListProvidersInput is the input schema for the list_providers tool.
type ListProvidersInput struct{}

// ProviderOutput describes one provider.
type ProviderOutput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
	Methods      []string `json:"methods"`
}

// ListProvidersOutput is the output schema for the list_providers tool.
type ListProvidersOutput struct {
	Providers []ProviderOutput `json:"providers"`
}

// ListConnectionsInput is the input schema for the list_connections tool.
type ListConnectionsInput struct {
	Provider string `json:"provider,omitempty" jsonschema:"only list connections of this provider"`
}

// ConnectionOutput describes one connection. Tokens are never included.
type ConnectionOutput struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Name          string `json:"name"`
	Username      string `json:"username,omitempty"`
	Status        string `json:"status"`
	RefreshNeeded bool   `json:"refresh_needed"`
	Usable        bool   `json:"usable"`
}

// ListConnectionsOutput is the output schema for the list_connections tool.
type ListConnectionsOutput struct {
	Connections []ConnectionOutput `json:"connections"`
	Count       int                `json:"count"`
}

// ListMethodsInput is the input schema for the list_methods tool.
type ListMethodsInput struct {
	Provider     string `json:"provider,omitempty" jsonschema:"provider identifier"`
	ConnectionID string `json:"connection_id,omitempty" jsonschema:"connection whose provider methods to list"`
}

// ListMethodsOutput is the output schema for the list_methods tool.
type ListMethodsOutput struct {
	Methods []domain.MethodSpec `json:"methods"`
}

// InvokeMethodInput is the input schema for the invoke_method tool.
type InvokeMethodInput struct {
	ConnectionID string         `json:"connection_id" jsonschema:"the connection to act on"`
	Method       string         `json:"method" jsonschema:"the provider method name, see list_methods"`
	Args         map[string]any `json:"args,omitempty" jsonschema:"method arguments"`
}

// InvokeMethodOutput is the output schema for the invoke_method tool.
type InvokeMethodOutput struct {
	Result any `json:"result"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_providers",
		Description: "List the platforms that accounts can be connected to",
	}, s.handleListProviders)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_connections",
		Description: "List the connected accounts of the organization",
	}, s.handleListConnections)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_methods",
		Description: "List the methods that can be invoked on a provider or connection",
	}, s.handleListMethods)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "invoke_method",
		Description: "Call a provider method on a connected account, refreshing its token when needed",
	}, s.handleInvokeMethod)
}

func (s *Server) handleListProviders(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListProvidersInput,
) (*mcp.CallToolResult, ListProvidersOutput, error) {
	ids := s.ports.Registry.ListIdentifiers()
	output := ListProvidersOutput{Providers: make([]ProviderOutput, 0, len(ids))}

	for _, id := range ids {
		desc, err := s.ports.Registry.Describe(id)
		if err != nil {
			return nil, ListProvidersOutput{}, err
		}
		methods, err := s.ports.Registry.Methods(id)
		if err != nil {
			return nil, ListProvidersOutput{}, err
		}

		names := make([]string, len(methods))
		for i, m := range methods {
			names[i] = m.Name
		}
		output.Providers = append(output.Providers, ProviderOutput{
			ID:           desc.ID,
			Name:         desc.Name,
			Capabilities: capabilities(desc),
			Methods:      names,
		})
	}

	return nil, output, nil
}

func (s *Server) handleListConnections(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListConnectionsInput,
) (*mcp.CallToolResult, ListConnectionsOutput, error) {
	conns, err := s.ports.Connections.List(ctx, s.ports.OrgID)
	if err != nil {
		return nil, ListConnectionsOutput{}, fmt.Errorf("listing connections: %w", err)
	}

	output := ListConnectionsOutput{Connections: make([]ConnectionOutput, 0, len(conns))}
	for i := range conns {
		c := &conns[i]
		if input.Provider != "" && c.Provider != input.Provider {
			continue
		}
		output.Connections = append(output.Connections, ConnectionOutput{
			ID:            c.ID,
			Provider:      c.Provider,
			Name:          c.Name,
			Username:      c.Username,
			Status:        string(c.Status),
			RefreshNeeded: c.RefreshNeeded,
			Usable:        c.Usable(),
		})
	}
	output.Count = len(output.Connections)

	return nil, output, nil
}

func (s *Server) handleListMethods(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListMethodsInput,
) (*mcp.CallToolResult, ListMethodsOutput, error) {
	provider := input.Provider
	if input.ConnectionID != "" {
		conn, err := s.ports.Connections.Get(ctx, s.ports.OrgID, input.ConnectionID)
		if err != nil {
			return nil, ListMethodsOutput{}, fmt.Errorf("loading connection: %w", err)
		}
		provider = conn.Provider
	}

	if provider == "" {
		return nil, ListMethodsOutput{Methods: s.ports.Registry.AllMethods()}, nil
	}

	methods, err := s.ports.Registry.Methods(provider)
	if err != nil {
		return nil, ListMethodsOutput{}, err
	}
	return nil, ListMethodsOutput{Methods: methods}, nil
}

func (s *Server) handleInvokeMethod(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input InvokeMethodInput,
) (*mcp.CallToolResult, InvokeMethodOutput, error) {
	if input.ConnectionID == "" || input.Method == "" {
		return nil, InvokeMethodOutput{}, errors.New("connection_id and method are required")
	}

	result, err := s.ports.Invoker.Invoke(ctx, s.ports.OrgID, input.ConnectionID, input.Method, input.Args)
	switch {
	case errors.Is(err, domain.ErrReauthenticationRequired):
		return nil, InvokeMethodOutput{}, fmt.Errorf(
			"connection %s must be reconnected before it can be used again", input.ConnectionID)
	case errors.Is(err, domain.ErrMethodNotFound):
		return nil, InvokeMethodOutput{}, fmt.Errorf("method %q does not exist, see list_methods", input.Method)
	case err != nil:
		return nil, InvokeMethodOutput{}, err
	}

	return nil, InvokeMethodOutput{Result: result}, nil
}

func capabilities(desc domain.ProviderDescriptor) []string {
	var caps []string
	flags := []struct {
		on   bool
		name string
	}{
		{desc.SupportsCustomFields, "custom_fields"},
		{desc.RequiresExternalURL, "external_url"},
		{desc.IsOneTimeToken, "one_time_token"},
		{desc.SupportsNicknameChange, "nickname"},
		{desc.SupportsPictureChange, "picture"},
		{desc.RefreshIsSlow, "slow_refresh"},
		{desc.InBetweenSteps, "setup_step"},
	}
	for _, f := range flags {
		if f.on {
			caps = append(caps, f.name)
		}
	}
	return caps
}
