package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

type mockRegistry struct{}

var testDescriptors = []domain.ProviderDescriptor{
	{ID: "youtube", Name: "YouTube", RefreshIsSlow: true, Scopes: []string{"youtube.upload"}},
	{ID: "mastodon", Name: "Mastodon", RequiresExternalURL: true},
	{ID: "devto", Name: "Dev.to", SupportsCustomFields: true},
}

func (mockRegistry) ListIdentifiers() []string {
	return []string{"youtube", "mastodon", "devto"}
}

func (mockRegistry) Describe(id string) (domain.ProviderDescriptor, error) {
	for _, d := range testDescriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.ProviderDescriptor{}, domain.ErrProviderNotFound
}

func (m mockRegistry) Methods(id string) ([]domain.MethodSpec, error) {
	if _, err := m.Describe(id); err != nil {
		return nil, err
	}
	return []domain.MethodSpec{{Provider: id, Name: "post", Description: "Publish a post"}}, nil
}

func (m mockRegistry) AllMethods() []domain.MethodSpec {
	var all []domain.MethodSpec
	for _, id := range m.ListIdentifiers() {
		methods, _ := m.Methods(id)
		all = append(all, methods...)
	}
	return all
}

func (mockRegistry) CustomFields(id string) ([]domain.CustomField, error) {
	if id == "devto" {
		return []domain.CustomField{{Key: "apiKey", Label: "API key", Kind: domain.FieldKindText, Validation: "^.{4,}$"}}, nil
	}
	return nil, nil
}

type mockCatalog struct{}

func (mockCatalog) FieldsFor(id string) []domain.CredentialField {
	if id != "youtube" {
		return nil
	}
	return []domain.CredentialField{
		{Key: "YOUTUBE_CLIENT_ID", Label: "Client ID", Kind: domain.FieldKindText, Required: true},
		{Key: "YOUTUBE_CLIENT_SECRET", Label: "Client secret", Kind: domain.FieldKindSecret, Required: true},
	}
}

type mockOAuthApps struct {
	apps    []domain.OAuthAppView
	created *driving.OAuthAppInput
	updated *driving.OAuthAppInput
	deleted string
	def     string
	err     error
}

func (m *mockOAuthApps) Create(_ context.Context, _ string, in driving.OAuthAppInput) (*domain.OAuthAppView, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = &in
	return &domain.OAuthAppView{ID: "app-new", Provider: in.Provider, Name: in.Name, IsDefault: in.IsDefault != nil && *in.IsDefault}, nil
}

func (m *mockOAuthApps) Get(_ context.Context, _, id string) (*domain.OAuthAppView, error) {
	for i := range m.apps {
		if m.apps[i].ID == id {
			return &m.apps[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockOAuthApps) List(_ context.Context, _, provider string) ([]domain.OAuthAppView, error) {
	var out []domain.OAuthAppView
	for _, a := range m.apps {
		if provider == "" || a.Provider == provider {
			out = append(out, a)
		}
	}
	return out, m.err
}

func (m *mockOAuthApps) Update(ctx context.Context, orgID, id string, in driving.OAuthAppInput) (*domain.OAuthAppView, error) {
	app, err := m.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	m.updated = &in
	return app, nil
}

func (m *mockOAuthApps) SetDefault(ctx context.Context, orgID, id string) error {
	if _, err := m.Get(ctx, orgID, id); err != nil {
		return err
	}
	m.def = id
	return nil
}

func (m *mockOAuthApps) Delete(_ context.Context, _, id string) error {
	m.deleted = id
	return m.err
}

type mockConnect struct {
	authURL   string
	beginErr  error
	completed *driving.CompleteAuthorizeInput
	org       domain.Organization
	conn      *domain.Connection
	err       error
}

func (m *mockConnect) BeginAuthorize(context.Context, string, string, driving.BeginAuthorizeInput) (string, error) {
	return m.authURL, m.beginErr
}

func (m *mockConnect) CompleteAuthorize(
	_ context.Context,
	org domain.Organization,
	provider string,
	in driving.CompleteAuthorizeInput,
) (*domain.Connection, error) {
	m.completed = &in
	m.org = org
	if m.err != nil {
		return nil, m.err
	}
	if m.conn != nil {
		return m.conn, nil
	}
	return &domain.Connection{ID: "conn-new", Provider: provider, Name: "New account"}, nil
}

type mockConnections struct {
	conns []domain.Connection
	calls []string
	got   map[string]any
	err   error
}

func (m *mockConnections) record(op, id string) error {
	m.calls = append(m.calls, op+":"+id)
	return m.err
}

func (m *mockConnections) List(context.Context, string) ([]domain.Connection, error) {
	return m.conns, m.err
}

func (m *mockConnections) Get(_ context.Context, _, id string) (*domain.Connection, error) {
	for i := range m.conns {
		if m.conns[i].ID == id {
			return &m.conns[i], nil
		}
	}
	return nil, domain.ErrConnectionNotFound
}

func (m *mockConnections) Disable(_ context.Context, _, id string) error {
	return m.record("disable", id)
}

func (m *mockConnections) Enable(_ context.Context, _, id string) error {
	return m.record("enable", id)
}

func (m *mockConnections) Delete(_ context.Context, _, id string) error {
	return m.record("delete", id)
}

func (m *mockConnections) Purge(_ context.Context, _, id string) error {
	return m.record("purge", id)
}

func (m *mockConnections) CompleteSetup(_ context.Context, _, id string) error {
	return m.record("setup", id)
}

func (m *mockConnections) ChangeNickname(_ context.Context, _, id, name string) (*domain.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Connection{ID: id, Name: name}, nil
}

func (m *mockConnections) ChangePicture(_ context.Context, _, id, url string) (*domain.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Connection{ID: id, Picture: url}, nil
}

func (m *mockConnections) UpdateSettings(_ context.Context, _, id string, settings map[string]any) error {
	m.got = settings
	return m.record("settings", id)
}

type mockSchedules struct {
	scheduled []domain.ScheduledInvocation
	err       error
}

func (m *mockSchedules) Schedule(
	_ context.Context,
	orgID, connectionID, method string,
	args map[string]any,
	runAt time.Time,
) (*domain.ScheduledInvocation, error) {
	if m.err != nil {
		return nil, m.err
	}
	inv := domain.ScheduledInvocation{
		ID: "inv-1", OrgID: orgID, ConnectionID: connectionID, Method: method,
		Args: args, RunAt: runAt, Status: domain.InvocationPending,
	}
	m.scheduled = append(m.scheduled, inv)
	return &inv, nil
}

func (m *mockSchedules) List(context.Context, string) ([]domain.ScheduledInvocation, error) {
	return m.scheduled, m.err
}

type mockInvoker struct {
	result  any
	err     error
	gotOrg  string
	gotArgs map[string]any
}

func (m *mockInvoker) Invoke(_ context.Context, orgID, _, _ string, args map[string]any) (any, error) {
	m.gotOrg = orgID
	m.gotArgs = args
	return m.result, m.err
}

type mockSettings struct {
	settings domain.AppSettings
	set      map[string]string
	err      error
}

func (m *mockSettings) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettings) Set(key, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.set == nil {
		m.set = map[string]string{}
	}
	m.set[key] = value
	return nil
}

func (m *mockSettings) Keys() []string {
	return []string{"connect.redirect_url", "ephemeral.driver"}
}

type mockScheduler struct {
	started, stopped bool
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started = true
	<-ctx.Done()
	return nil
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

type testServices struct {
	apps        *mockOAuthApps
	connect     *mockConnect
	connections *mockConnections
	schedules   *mockSchedules
	invoker     *mockInvoker
	settings    *mockSettings
	scheduler   *mockScheduler
}

// setupTestServices installs mocks and restores an empty service set afterwards.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	ts := &testServices{
		apps: &mockOAuthApps{apps: []domain.OAuthAppView{
			{ID: "app-1", Provider: "youtube", Name: "Main", ClientID: "1234567890.apps", HasSecret: true, IsDefault: true},
		}},
		connect: &mockConnect{},
		connections: &mockConnections{conns: []domain.Connection{
			{ID: "c1", Provider: "youtube", InternalID: "UC1", Name: "Channel", Status: domain.ConnectionActive},
			{ID: "c2", Provider: "mastodon", Name: "Toots", Status: domain.ConnectionActive, RefreshNeeded: true},
		}},
		schedules: &mockSchedules{},
		invoker:   &mockInvoker{},
		settings:  &mockSettings{settings: domain.DefaultAppSettings()},
		scheduler: &mockScheduler{},
	}

	SetServices(Services{
		Registry:    mockRegistry{},
		Catalog:     mockCatalog{},
		OAuthApps:   ts.apps,
		Connect:     ts.connect,
		Connections: ts.connections,
		Schedules:   ts.schedules,
		Invoker:     ts.invoker,
		Settings:    ts.settings,
		Scheduler:   ts.scheduler,
	})
	t.Cleanup(func() { SetServices(Services{}) })

	return ts
}

// setStdin feeds input to the interactive prompts.
func setStdin(t *testing.T, input string) {
	t.Helper()
	orig := stdin
	stdin = strings.NewReader(input)
	t.Cleanup(func() { stdin = orig })
}

// execute runs the root command with fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
