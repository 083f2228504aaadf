package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for Sercha Connect resources.
	uriScheme = "sercha-connect://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "connections",
		Name:        "connections",
		Description: "Connected accounts of the organization",
		MIMEType:    "application/json",
	}, s.handleConnectionsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "providers/{providerId}",
		Name:        "provider",
		Description: "Descriptor and method table of a provider",
		MIMEType:    "application/json",
	}, s.handleProviderResource)
}

// handleConnectionsResource returns the organization's connections.
func (s *Server) handleConnectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	_, output, err := s.handleListConnections(ctx, nil, ListConnectionsInput{})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, output.Connections)
}

// handleProviderResource returns a provider descriptor with its methods.
func (s *Server) handleProviderResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractProviderID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	desc, err := s.ports.Registry.Describe(id)
	if errors.Is(err, domain.ErrProviderNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("describing provider: %w", err)
	}
	methods, err := s.ports.Registry.Methods(id)
	if err != nil {
		return nil, fmt.Errorf("listing methods: %w", err)
	}

	return jsonResource(req.Params.URI, struct {
		domain.ProviderDescriptor
		Methods []domain.MethodSpec `json:"methods"`
	}{desc, methods})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractProviderID extracts the provider ID from a URI like sercha-connect://providers/{providerId}.
func extractProviderID(uri string) string {
	const prefix = uriScheme + "providers/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
