package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// mockRegistry is a mock implementation of driving.ProviderRegistry.
type mockRegistry struct {
	descriptors []domain.ProviderDescriptor
	methods     map[string][]domain.MethodSpec
}

func (m *mockRegistry) ListIdentifiers() []string {
	ids := make([]string, len(m.descriptors))
	for i, d := range m.descriptors {
		ids[i] = d.ID
	}
	return ids
}

func (m *mockRegistry) Describe(id string) (domain.ProviderDescriptor, error) {
	for _, d := range m.descriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.ProviderDescriptor{}, domain.ErrProviderNotFound
}

func (m *mockRegistry) Methods(id string) ([]domain.MethodSpec, error) {
	if _, err := m.Describe(id); err != nil {
		return nil, err
	}
	return m.methods[id], nil
}

func (m *mockRegistry) AllMethods() []domain.MethodSpec {
	var all []domain.MethodSpec
	for _, d := range m.descriptors {
		all = append(all, m.methods[d.ID]...)
	}
	return all
}

func (m *mockRegistry) CustomFields(string) ([]domain.CustomField, error) {
	return nil, nil
}

// mockConnections is a mock implementation of driving.ConnectionService.
type mockConnections struct {
	connections []domain.Connection
	err         error
}

func (m *mockConnections) List(_ context.Context, _ string) ([]domain.Connection, error) {
	return m.connections, m.err
}

func (m *mockConnections) Get(_ context.Context, _, id string) (*domain.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.connections {
		if m.connections[i].ID == id {
			return &m.connections[i], nil
		}
	}
	return nil, domain.ErrConnectionNotFound
}

func (m *mockConnections) Disable(context.Context, string, string) error { return m.err }
func (m *mockConnections) Enable(context.Context, string, string) error  { return m.err }
func (m *mockConnections) Delete(context.Context, string, string) error  { return m.err }
func (m *mockConnections) Purge(context.Context, string, string) error   { return m.err }

func (m *mockConnections) ChangeNickname(context.Context, string, string, string) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnections) ChangePicture(context.Context, string, string, string) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnections) UpdateSettings(context.Context, string, string, map[string]any) error {
	return m.err
}

func (m *mockConnections) CompleteSetup(context.Context, string, string) error { return m.err }

// mockInvoker is a mock implementation of driving.Invoker.
type mockInvoker struct {
	result any
	err    error

	gotOrg    string
	gotConn   string
	gotMethod string
	gotArgs   map[string]any
}

func (m *mockInvoker) Invoke(_ context.Context, orgID, connectionID, method string, args map[string]any) (any, error) {
	m.gotOrg, m.gotConn, m.gotMethod, m.gotArgs = orgID, connectionID, method, args
	return m.result, m.err
}

func testPorts() *Ports {
	return &Ports{
		Registry: &mockRegistry{
			descriptors: []domain.ProviderDescriptor{
				{ID: "youtube", Name: "YouTube", RefreshIsSlow: true},
				{ID: "mastodon", Name: "Mastodon", RequiresExternalURL: true, SupportsPictureChange: true},
			},
			methods: map[string][]domain.MethodSpec{
				"youtube":  {{Provider: "youtube", Name: "channels"}, {Provider: "youtube", Name: "upload"}},
				"mastodon": {{Provider: "mastodon", Name: "post"}},
			},
		},
		Connections: &mockConnections{
			connections: []domain.Connection{
				{ID: "c1", Provider: "youtube", Name: "Channel", Status: domain.ConnectionActive},
				{ID: "c2", Provider: "mastodon", Name: "Toots", Username: "@me", Status: domain.ConnectionActive, RefreshNeeded: true},
			},
		},
		Invoker: &mockInvoker{},
		OrgID:   "org-1",
	}
}
