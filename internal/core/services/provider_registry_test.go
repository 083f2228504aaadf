package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

func TestNewProviderRegistry_RejectsDuplicates(t *testing.T) {
	s := &script{}
	reg := registration(domain.ProviderDescriptor{ID: "youtube"}, nil, s, nil)

	_, err := NewProviderRegistry(reg, reg)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewProviderRegistry_RejectsIncompleteRegistration(t *testing.T) {
	_, err := NewProviderRegistry(driven.ProviderRegistration{Descriptor: domain.ProviderDescriptor{ID: "x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewProviderRegistry(registration(domain.ProviderDescriptor{}, nil, &script{}, nil))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProviderRegistry_ListAndDescribe(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, []string{"youtube", "linkedin-page", "discord", "mastodon", "devto"}, e.registry.ListIdentifiers())

	desc, err := e.registry.Describe("linkedin-page")
	require.NoError(t, err)
	assert.True(t, desc.RefreshIsSlow)
	assert.True(t, desc.InBetweenSteps)

	_, err = e.registry.Describe("myspace")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviderRegistry_ListIdentifiersReturnsACopy(t *testing.T) {
	e := newTestEnv(t)

	ids := e.registry.ListIdentifiers()
	ids[0] = "changed"

	assert.Equal(t, "youtube", e.registry.ListIdentifiers()[0])
}

func TestProviderRegistry_InstantiateIsFreshPerCall(t *testing.T) {
	e := newTestEnv(t)
	a := &domain.ClientInformation{OAuthAppID: "a"}
	b := &domain.ClientInformation{OAuthAppID: "b"}

	p1, err := e.registry.Instantiate("youtube", a)
	require.NoError(t, err)
	p2, err := e.registry.Instantiate("youtube", b)
	require.NoError(t, err)

	assert.NotSame(t, p1, p2)
	assert.Same(t, a, p1.(*fakeProvider).info)
	assert.Same(t, b, p2.(*fakeProvider).info)

	_, err = e.registry.Instantiate("myspace", nil)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviderRegistry_MethodsAreStampedWithProvider(t *testing.T) {
	e := newTestEnv(t)

	methods, err := e.registry.Methods("discord")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "discord", methods[0].Provider)
	assert.Equal(t, "echo", methods[0].Name)

	all := e.registry.AllMethods()
	assert.Len(t, all, 5)
	assert.Equal(t, "youtube", all[0].Provider)

	_, err = e.registry.Methods("myspace")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviderRegistry_CustomFields(t *testing.T) {
	e := newTestEnv(t)

	fields, err := e.registry.CustomFields("devto")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "apiKey", fields[0].Key)

	fields, err = e.registry.CustomFields("youtube")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestProviderRegistry_IsAllowed(t *testing.T) {
	e := newTestEnv(t)

	assert.True(t, e.registry.IsAllowed("youtube", nil))
	assert.True(t, e.registry.IsAllowed("youtube", []string{"youtube"}))
	assert.False(t, e.registry.IsAllowed("discord", []string{"youtube"}))
	assert.False(t, e.registry.IsAllowed("myspace", nil))
}

func TestCredentialCatalog_FieldsFor(t *testing.T) {
	e := newTestEnv(t)

	fields := e.catalog.FieldsFor("discord")
	require.Len(t, fields, 3)
	assert.Equal(t, "DISCORD_CLIENT_ID", fields[domain.ClientIDFieldIndex].Key)
	assert.Equal(t, "DISCORD_CLIENT_SECRET", fields[domain.ClientSecretFieldIndex].Key)
	assert.Equal(t, "DISCORD_BOT_TOKEN_ID", fields[2].Key)

	assert.Empty(t, e.catalog.FieldsFor("mastodon"))
	assert.Empty(t, e.catalog.FieldsFor("myspace"))
}

func TestCredentialCatalog_Validate(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name     string
		provider string
		values   map[string]string
		wantErr  bool
	}{
		{
			name:     "complete",
			provider: "youtube",
			values:   map[string]string{"YOUTUBE_CLIENT_ID": "id", "YOUTUBE_CLIENT_SECRET": "secret"},
		},
		{
			name:     "blank secret",
			provider: "youtube",
			values:   map[string]string{"YOUTUBE_CLIENT_ID": "id", "YOUTUBE_CLIENT_SECRET": "  "},
			wantErr:  true,
		},
		{
			name:     "unknown key",
			provider: "youtube",
			values: map[string]string{
				"YOUTUBE_CLIENT_ID": "id", "YOUTUBE_CLIENT_SECRET": "secret", "OTHER": "x",
			},
			wantErr: true,
		},
		{
			name:     "missing extra",
			provider: "discord",
			values:   map[string]string{"DISCORD_CLIENT_ID": "id", "DISCORD_CLIENT_SECRET": "secret"},
			wantErr:  true,
		},
		{
			name:     "provider without fields",
			provider: "mastodon",
			values:   map[string]string{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.catalog.Validate(tt.provider, tt.values)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}
