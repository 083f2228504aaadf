package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

func TestCredentialResolver_EnvironmentFallback(t *testing.T) {
	e := newTestEnv(t)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.FromEnvironment())
	assert.Equal(t, "env-yt-id", info.Value("YOUTUBE_CLIENT_ID"))
	assert.Equal(t, "env-yt-secret", info.Value("YOUTUBE_CLIENT_SECRET"))
}

func TestCredentialResolver_MissingEnvironmentVariable(t *testing.T) {
	e := newTestEnv(t)
	delete(e.env, "YOUTUBE_CLIENT_SECRET")

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		AllowEnvFallback: true,
	})

	assert.Nil(t, info)
	assert.ErrorIs(t, err, domain.ErrNoCredentialsConfigured)
}

func TestCredentialResolver_EnvFallbackDisallowed(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{})

	assert.ErrorIs(t, err, domain.ErrNoCredentialsConfigured)
}

func TestCredentialResolver_ProviderWithoutFields(t *testing.T) {
	e := newTestEnv(t)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "mastodon", driving.ResolveOptions{
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCredentialResolver_OrganizationDefault(t *testing.T) {
	e := newTestEnv(t)
	appA := e.createApp(t, "org-1", "linkedin-page", "A", true)
	e.createApp(t, "org-1", "linkedin-page", "B", false)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "linkedin-page", driving.ResolveOptions{
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.Equal(t, appA, info.OAuthAppID)
	assert.Equal(t, "A-id", info.Value("LINKEDIN_CLIENT_ID"))
	assert.Equal(t, "A-secret", info.Value("LINKEDIN_CLIENT_SECRET"))
}

func TestCredentialResolver_ExplicitApplicationWins(t *testing.T) {
	e := newTestEnv(t)
	e.createApp(t, "org-1", "linkedin-page", "A", true)
	appB := e.createApp(t, "org-1", "linkedin-page", "B", false)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "linkedin-page", driving.ResolveOptions{
		OAuthAppID:       appB,
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.Equal(t, appB, info.OAuthAppID)
	assert.Equal(t, "B-id", info.Value("LINKEDIN_CLIENT_ID"))
	assert.Equal(t, "B-secret", info.Value("LINKEDIN_CLIENT_SECRET"))
}

func TestCredentialResolver_ExplicitApplicationOfOtherProvider(t *testing.T) {
	e := newTestEnv(t)
	e.createApp(t, "org-1", "youtube", "default-yt", true)
	linkedin := e.createApp(t, "org-1", "linkedin-page", "A", false)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		OAuthAppID:       linkedin,
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.True(t, info.FromEnvironment())
	assert.Equal(t, "env-yt-id", info.Value("YOUTUBE_CLIENT_ID"))
}

func TestCredentialResolver_ExplicitApplicationOfOtherOrganization(t *testing.T) {
	e := newTestEnv(t)
	foreign := e.createApp(t, "org-2", "youtube", "foreign", true)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		OAuthAppID:       foreign,
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.True(t, info.FromEnvironment())
}

func TestCredentialResolver_SystemDefault(t *testing.T) {
	e := newTestEnv(t)
	system := e.createApp(t, SystemOrgID, "youtube", "shared", true)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.Equal(t, system, info.OAuthAppID)
	assert.Equal(t, "shared-id", info.Value("YOUTUBE_CLIENT_ID"))

	own := e.createApp(t, "org-1", "youtube", "own", true)
	info, err = e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		AllowEnvFallback: true,
	})
	require.NoError(t, err)
	assert.Equal(t, own, info.OAuthAppID)
}

func TestCredentialResolver_DeletedDefaultFallsBackToEnvironment(t *testing.T) {
	e := newTestEnv(t)
	app := e.createApp(t, "org-1", "youtube", "gone", true)
	require.NoError(t, e.appService.Delete(context.Background(), "org-1", app))

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		OAuthAppID:       app,
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.True(t, info.FromEnvironment())
}

func TestCredentialResolver_ExtraFieldsAreDecrypted(t *testing.T) {
	e := newTestEnv(t)
	e.createApp(t, "org-1", "discord", "bot", true)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "discord", driving.ResolveOptions{})

	require.NoError(t, err)
	assert.Equal(t, "bot-id", info.Value("DISCORD_CLIENT_ID"))
	assert.Equal(t, "bot-secret", info.Value("DISCORD_CLIENT_SECRET"))
	assert.Equal(t, "bot-bot", info.Value("DISCORD_BOT_TOKEN_ID"))
}

func TestCredentialResolver_InstanceURLIsCarried(t *testing.T) {
	e := newTestEnv(t)

	info, err := e.resolver.Resolve(context.Background(), "org-1", "youtube", driving.ResolveOptions{
		InstanceURL:      "https://social.example",
		AllowEnvFallback: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://social.example", info.InstanceURL)
}
