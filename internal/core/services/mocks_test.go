package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// --- Cipher ---

// fakeCipher prefixes plaintext so tests can see that a value was encrypted.
type fakeCipher struct{}

var _ driven.Cipher = fakeCipher{}

func (fakeCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeCipher) Decrypt(ciphertext string) (string, error) {
	plain, ok := strings.CutPrefix(ciphertext, "enc:")
	if !ok {
		return "", errors.New("not encrypted")
	}
	return plain, nil
}

// --- Ephemeral store ---

type fakeEphemeral struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

var _ driven.EphemeralStore = (*fakeEphemeral)(nil)

func newFakeEphemeral() *fakeEphemeral {
	return &fakeEphemeral{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (e *fakeEphemeral) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setErr != nil {
		return e.setErr
	}
	e.values[key] = value
	e.ttls[key] = ttl
	return nil
}

func (e *fakeEphemeral) Take(_ context.Context, key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	delete(e.values, key)
	return v, ok, nil
}

func (e *fakeEphemeral) get(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	return v, ok
}

func (e *fakeEphemeral) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values)
}

// --- Metrics ---

type fakeMetrics struct {
	mu        sync.Mutex
	outcomes  []string
	refreshes []bool
}

var _ driven.Metrics = (*fakeMetrics)(nil)

func (m *fakeMetrics) InvocationCompleted(_, _, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) TokenRefreshed(_ string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, ok)
}

// --- Provider ---

// script drives every instance of a fake provider. Instances are created
// per call, so observations are collected here.
type script struct {
	mu sync.Mutex

	infos []*domain.ClientInformation

	authURL    *domain.AuthURL
	authURLErr error
	authURLExt *domain.ExternalInstance

	authResult *domain.AuthResult
	authErr    error
	authParams []domain.AuthParams
	authExt    *domain.ExternalInstance

	refreshResult *domain.AuthResult
	refreshErr    error
	refreshTokens []string

	// responses are returned in order by the "echo" method; the last one repeats.
	responses []response
	calls     []domain.Call

	external    *domain.ExternalInstance
	reconnected *domain.AuthResult
	remoteName  string
}

type response struct {
	out any
	err error
}

func (s *script) refreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshTokens)
}

func (s *script) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *script) lastInfo() *domain.ClientInformation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.infos) == 0 {
		return nil
	}
	return s.infos[len(s.infos)-1]
}

type fakeProvider struct {
	desc domain.ProviderDescriptor
	info *domain.ClientInformation
	s    *script
}

var _ driven.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Descriptor() domain.ProviderDescriptor { return p.desc }

func (p *fakeProvider) GenerateAuthURL(_ context.Context, ext *domain.ExternalInstance) (*domain.AuthURL, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.authURLExt = ext
	if p.s.authURLErr != nil {
		return nil, p.s.authURLErr
	}
	if p.s.authURL != nil {
		return p.s.authURL, nil
	}
	return &domain.AuthURL{
		URL:          "https://auth.example.com/" + p.desc.ID + "?state=st-1",
		CodeVerifier: "verifier-1",
		State:        "st-1",
	}, nil
}

func (p *fakeProvider) Authenticate(
	_ context.Context,
	params domain.AuthParams,
	ext *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.authParams = append(p.s.authParams, params)
	p.s.authExt = ext
	if p.s.authErr != nil {
		return nil, p.s.authErr
	}
	if p.s.authResult == nil {
		return nil, nil
	}
	r := *p.s.authResult
	return &r, nil
}

func (p *fakeProvider) RefreshToken(_ context.Context, refreshToken string) (*domain.AuthResult, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.refreshTokens = append(p.s.refreshTokens, refreshToken)
	if p.s.refreshErr != nil {
		return nil, p.s.refreshErr
	}
	if p.s.refreshResult == nil {
		return nil, nil
	}
	r := *p.s.refreshResult
	return &r, nil
}

func (p *fakeProvider) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"echo": func(_ context.Context, call domain.Call) (any, error) {
			p.s.mu.Lock()
			defer p.s.mu.Unlock()
			idx := len(p.s.calls)
			p.s.calls = append(p.s.calls, call)
			if len(p.s.responses) == 0 {
				return call.Args, nil
			}
			r := p.s.responses[min(idx, len(p.s.responses)-1)]
			return r.out, r.err
		},
	}
}

type externalProvider struct{ *fakeProvider }

func (p externalProvider) ExternalURL(_ context.Context, _ string) (*domain.ExternalInstance, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.external == nil {
		return &domain.ExternalInstance{}, nil
	}
	ext := *p.s.external
	return &ext, nil
}

type customFieldsProvider struct{ *fakeProvider }

func (customFieldsProvider) CustomFields() []domain.CustomField {
	return []domain.CustomField{{Key: "apiKey", Label: "API key", Kind: domain.FieldKindSecret}}
}

type reconnectProvider struct{ *fakeProvider }

func (p reconnectProvider) Reconnect(_ context.Context, _ string, result *domain.AuthResult) (*domain.AuthResult, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.reconnected != nil {
		r := *p.s.reconnected
		return &r, nil
	}
	return result, nil
}

type profileProvider struct{ *fakeProvider }

func (p profileProvider) ChangeNickname(_ context.Context, call domain.Call, name string) (string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.calls = append(p.s.calls, call)
	if p.s.remoteName != "" {
		return p.s.remoteName, nil
	}
	return name, nil
}

func (p profileProvider) ChangePicture(_ context.Context, call domain.Call, url string) (string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.calls = append(p.s.calls, call)
	return url, nil
}

func registration(
	desc domain.ProviderDescriptor,
	fields []domain.CredentialField,
	s *script,
	wrap func(*fakeProvider) driven.Provider,
) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: desc,
		Fields:     fields,
		Methods:    []domain.MethodSpec{{Name: "echo", Description: "returns its arguments"}},
		New: func(info *domain.ClientInformation) driven.Provider {
			s.mu.Lock()
			s.infos = append(s.infos, info)
			s.mu.Unlock()
			p := &fakeProvider{desc: desc, info: info, s: s}
			if wrap == nil {
				return p
			}
			return wrap(p)
		},
	}
}

func oauthFields(prefix string, extras ...string) []domain.CredentialField {
	fields := []domain.CredentialField{
		{Key: prefix + "_CLIENT_ID", Label: "Client ID", Kind: domain.FieldKindText, Required: true},
		{Key: prefix + "_CLIENT_SECRET", Label: "Client secret", Kind: domain.FieldKindSecret, Required: true},
	}
	for _, key := range extras {
		fields = append(fields, domain.CredentialField{Key: key, Label: key, Kind: domain.FieldKindSecret, Required: true})
	}
	return fields
}

// --- Test environment ---

type testEnv struct {
	scripts     map[string]*script
	regs        []driven.ProviderRegistration
	registry    *ProviderRegistry
	catalog     *CredentialCatalog
	apps        *memory.OAuthAppStore
	appService  *OAuthAppService
	conns       *memory.ConnectionStore
	invocations *memory.InvocationStore
	ephemeral   *fakeEphemeral
	env         map[string]string
	resolver    *CredentialResolver
	metrics     *fakeMetrics
	sleeps      []time.Duration
	invoker     *Invoker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		scripts: map[string]*script{
			"youtube":       {},
			"linkedin-page": {},
			"discord":       {},
			"mastodon":      {},
			"devto":         {},
		},
		env: map[string]string{
			"YOUTUBE_CLIENT_ID":      "env-yt-id",
			"YOUTUBE_CLIENT_SECRET":  "env-yt-secret",
			"LINKEDIN_CLIENT_ID":     "env-li-id",
			"LINKEDIN_CLIENT_SECRET": "env-li-secret",
			"DISCORD_CLIENT_ID":      "env-dc-id",
			"DISCORD_CLIENT_SECRET":  "env-dc-secret",
			"DISCORD_BOT_TOKEN_ID":   "env-dc-bot",
		},
		metrics: &fakeMetrics{},
	}

	e.regs = []driven.ProviderRegistration{
		registration(domain.ProviderDescriptor{ID: "youtube", Name: "YouTube"},
			oauthFields("YOUTUBE"), e.scripts["youtube"], nil),
		registration(domain.ProviderDescriptor{
			ID: "linkedin-page", Name: "LinkedIn Page", RefreshIsSlow: true, InBetweenSteps: true,
		}, oauthFields("LINKEDIN"), e.scripts["linkedin-page"], func(p *fakeProvider) driven.Provider {
			return reconnectProvider{p}
		}),
		registration(domain.ProviderDescriptor{
			ID: "discord", Name: "Discord", SupportsNicknameChange: true, SupportsPictureChange: true,
		}, oauthFields("DISCORD", "DISCORD_BOT_TOKEN_ID"), e.scripts["discord"], func(p *fakeProvider) driven.Provider {
			return profileProvider{p}
		}),
		registration(domain.ProviderDescriptor{
			ID: "mastodon", Name: "Mastodon", RequiresExternalURL: true,
		}, nil, e.scripts["mastodon"], func(p *fakeProvider) driven.Provider {
			return externalProvider{p}
		}),
		registration(domain.ProviderDescriptor{
			ID: "devto", Name: "Dev.to", SupportsCustomFields: true, IsOneTimeToken: true,
		}, nil, e.scripts["devto"], func(p *fakeProvider) driven.Provider {
			return customFieldsProvider{p}
		}),
	}

	var err error
	e.registry, err = NewProviderRegistry(e.regs...)
	require.NoError(t, err)
	e.catalog = NewCredentialCatalog(e.regs...)
	e.apps = memory.NewOAuthAppStore()
	e.appService = NewOAuthAppService(e.apps, e.catalog, fakeCipher{})
	e.invocations = memory.NewInvocationStore()
	e.conns = memory.NewConnectionStore(e.invocations)
	e.ephemeral = newFakeEphemeral()
	e.resolver = NewCredentialResolver(e.catalog, e.apps, fakeCipher{}).WithEnvLookup(func(key string) (string, bool) {
		v, ok := e.env[key]
		return v, ok
	})
	e.invoker = NewInvoker(e.registry, e.resolver, e.conns, fakeCipher{}, InvokeOptions{
		MaxRetries:       1,
		SlowRefreshDelay: 10 * time.Second,
		Metrics:          e.metrics,
	})
	e.invoker.sleep = func(_ context.Context, d time.Duration) error {
		e.sleeps = append(e.sleeps, d)
		return nil
	}
	return e
}

func (e *testEnv) connectFlow(opts ConnectOptions) *ConnectFlow {
	return NewConnectFlow(e.registry, e.resolver, e.conns, e.ephemeral, fakeCipher{}, opts)
}

// createApp stores an application through the service and returns its id.
func (e *testEnv) createApp(t *testing.T, orgID, provider, name string, isDefault bool) string {
	t.Helper()
	prefix := strings.ToUpper(strings.Split(provider, "-")[0])
	fields := map[string]string{
		prefix + "_CLIENT_ID":     name + "-id",
		prefix + "_CLIENT_SECRET": name + "-secret",
	}
	if provider == "discord" {
		fields["DISCORD_BOT_TOKEN_ID"] = name + "-bot"
	}
	view, err := e.appService.Create(context.Background(), orgID, driving.OAuthAppInput{
		Provider:  provider,
		Name:      name,
		Fields:    fields,
		IsDefault: &isDefault,
	})
	require.NoError(t, err)
	return view.ID
}

// seedConnection stores an active connection with tokens.
func (e *testEnv) seedConnection(t *testing.T, provider, internalID string, mutate ...func(*domain.Connection)) *domain.Connection {
	t.Helper()
	conn := &domain.Connection{
		OrgID:          "org-1",
		Provider:       provider,
		InternalID:     internalID,
		Name:           "Account " + internalID,
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		TokenExpiresAt: time.Now().Add(time.Hour),
		Status:         domain.ConnectionActive,
	}
	for _, fn := range mutate {
		fn(conn)
	}
	stored, err := e.conns.Upsert(context.Background(), conn)
	require.NoError(t, err)
	return stored
}
