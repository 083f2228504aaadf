package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

var trialOrg = domain.Organization{ID: "org-1", Trialing: true}

func TestBeginAuthorize_UnknownProvider(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "myspace",
		driving.BeginAuthorizeInput{})

	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestBeginAuthorize_ProviderNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	flow := e.connectFlow(ConnectOptions{AllowedProviders: []string{"youtube"}})

	_, err := flow.BeginAuthorize(context.Background(), "org-1", "discord", driving.BeginAuthorizeInput{})

	assert.ErrorIs(t, err, domain.ErrProviderNotAllowed)
	assert.Zero(t, e.ephemeral.len())
}

func TestBeginAuthorize_ExternalURLRequired(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "mastodon",
		driving.BeginAuthorizeInput{})

	assert.ErrorIs(t, err, domain.ErrExternalURLRequired)
}

func TestBeginAuthorize_StoresVerifier(t *testing.T) {
	e := newTestEnv(t)

	url, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "youtube",
		driving.BeginAuthorizeInput{})

	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/youtube?state=st-1", url)

	verifier, ok := e.ephemeral.get("login:st-1")
	assert.True(t, ok)
	assert.Equal(t, "verifier-1", verifier)
	assert.Equal(t, 300*time.Second, e.ephemeral.ttls["login:st-1"])

	_, ok = e.ephemeral.get("refresh:st-1")
	assert.False(t, ok)
	_, ok = e.ephemeral.get("oauth-app:st-1")
	assert.False(t, ok, "environment credentials leave no application key")
	assert.True(t, e.scripts["youtube"].lastInfo().FromEnvironment())
}

func TestBeginAuthorize_RecordsApplicationAndRefreshTarget(t *testing.T) {
	e := newTestEnv(t)
	appB := e.createApp(t, "org-1", "linkedin-page", "B", false)
	e.createApp(t, "org-1", "linkedin-page", "A", true)
	e.seedConnection(t, "linkedin-page", "page-1", func(c *domain.Connection) { c.OAuthAppID = appB })

	_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "linkedin-page",
		driving.BeginAuthorizeInput{RefreshID: "page-1"})
	require.NoError(t, err)

	refresh, _ := e.ephemeral.get("refresh:st-1")
	assert.Equal(t, "page-1", refresh)
	app, _ := e.ephemeral.get("oauth-app:st-1")
	assert.Equal(t, appB, app, "the connection's own application is reused")
	assert.Equal(t, "B-id", e.scripts["linkedin-page"].lastInfo().Value("LINKEDIN_CLIENT_ID"))
}

func TestBeginAuthorize_ExternalInstance(t *testing.T) {
	e := newTestEnv(t)
	e.scripts["mastodon"].external = &domain.ExternalInstance{ClientID: "dyn-id", ClientSecret: "dyn-secret"}

	_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "mastodon",
		driving.BeginAuthorizeInput{ExternalURL: "https://social.example"})
	require.NoError(t, err)

	ext := e.scripts["mastodon"].authURLExt
	require.NotNil(t, ext)
	assert.Equal(t, "https://social.example", ext.URL)
	assert.Equal(t, "dyn-id", ext.ClientID)

	raw, ok := e.ephemeral.get("external:st-1")
	require.True(t, ok)
	assert.JSONEq(t,
		`{"instanceUrl":"https://social.example","client_id":"dyn-id","client_secret":"dyn-secret"}`, raw)
}

func TestBeginAuthorize_FailuresAreReported(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		e := newTestEnv(t)
		e.scripts["youtube"].authURLErr = errors.New("boom")

		_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "youtube",
			driving.BeginAuthorizeInput{})

		assert.ErrorIs(t, err, domain.ErrAuthorizeFailed)
	})

	t.Run("missing credentials", func(t *testing.T) {
		e := newTestEnv(t)
		delete(e.env, "YOUTUBE_CLIENT_ID")

		_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "youtube",
			driving.BeginAuthorizeInput{})

		assert.ErrorIs(t, err, domain.ErrAuthorizeFailed)
		assert.ErrorIs(t, err, domain.ErrNoCredentialsConfigured)
	})

	t.Run("store error", func(t *testing.T) {
		e := newTestEnv(t)
		e.ephemeral.setErr = errors.New("redis down")

		_, err := e.connectFlow(ConnectOptions{}).BeginAuthorize(context.Background(), "org-1", "youtube",
			driving.BeginAuthorizeInput{})

		assert.ErrorIs(t, err, domain.ErrAuthorizeFailed)
	})
}

func TestCompleteAuthorize_CreatesConnection(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	app := e.createApp(t, "org-1", "youtube", "yt", true)
	e.scripts["youtube"].authResult = &domain.AuthResult{
		ID: "chan-1", Name: "My Channel", AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600,
	}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)

	conn, err := flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{
		Code: "code-1", State: "st-1", Timezone: 120,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, "chan-1", conn.InternalID)
	assert.Equal(t, "My Channel", conn.Name)
	assert.Equal(t, "at", conn.AccessToken)
	assert.Equal(t, "rt", conn.RefreshToken)
	assert.Equal(t, app, conn.OAuthAppID)
	assert.Equal(t, 120, conn.Timezone)
	assert.WithinDuration(t, time.Now().Add(time.Hour), conn.TokenExpiresAt, time.Minute)
	assert.False(t, conn.InBetweenSteps)

	params := e.scripts["youtube"].authParams
	require.Len(t, params, 1)
	assert.Equal(t, "code-1", params[0].Code)
	assert.Equal(t, "verifier-1", params[0].CodeVerifier)
	assert.Zero(t, e.ephemeral.len(), "every correlation entry is consumed")
}

func TestCompleteAuthorize_StateCannotBeReplayed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["youtube"].authResult = &domain.AuthResult{ID: "chan-1", AccessToken: "at"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)
	_, err = flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	require.NoError(t, err)

	_, err = flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteAuthorize_UnknownState(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.connectFlow(ConnectOptions{}).CompleteAuthorize(context.Background(), trialOrg, "youtube",
		driving.CompleteAuthorizeInput{Code: "c", State: "forged"})

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, e.scripts["youtube"].authParams, "the provider is never called")
}

func TestCompleteAuthorize_AccountMismatchWritesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	existing := e.seedConnection(t, "youtube", "chan-1")
	e.scripts["youtube"].authResult = &domain.AuthResult{ID: "chan-2", AccessToken: "other"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{RefreshID: "chan-1"})
	require.NoError(t, err)

	_, err = flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	assert.ErrorIs(t, err, domain.ErrAccountMismatch)

	got, err := e.conns.Get(ctx, "org-1", existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	list, err := e.conns.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCompleteAuthorize_RefreshUpdatesExistingConnection(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	existing := e.seedConnection(t, "linkedin-page", "page-1", func(c *domain.Connection) {
		c.Status = domain.ConnectionDisabled
		c.RefreshNeeded = true
	})
	e.scripts["linkedin-page"].authResult = &domain.AuthResult{ID: "member-9", AccessToken: "fresh"}
	e.scripts["linkedin-page"].reconnected = &domain.AuthResult{ID: "page-1", Name: "Page", AccessToken: "fresh"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "linkedin-page", driving.BeginAuthorizeInput{RefreshID: "page-1"})
	require.NoError(t, err)

	conn, err := flow.CompleteAuthorize(ctx, trialOrg, "linkedin-page",
		driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, conn.ID)
	assert.Equal(t, "fresh", conn.AccessToken)
	assert.Equal(t, domain.ConnectionActive, conn.Status)
	assert.False(t, conn.RefreshNeeded)
	assert.False(t, conn.InBetweenSteps, "refreshes skip the setup step")
	assert.Equal(t, "page-1", e.scripts["linkedin-page"].authParams[0].RefreshTargetID)
}

func TestCompleteAuthorize_NewConnectionNeedsSetupStep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["linkedin-page"].authResult = &domain.AuthResult{ID: "member-1", AccessToken: "at"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "linkedin-page", driving.BeginAuthorizeInput{})
	require.NoError(t, err)

	conn, err := flow.CompleteAuthorize(ctx, trialOrg, "linkedin-page",
		driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	require.NoError(t, err)
	assert.True(t, conn.InBetweenSteps)
}

func TestCompleteAuthorize_ScopesErrorPassesThrough(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["youtube"].authErr = &domain.ScopesError{Message: "missing youtube.upload"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)

	_, err = flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})

	var scopes *domain.ScopesError
	require.ErrorAs(t, err, &scopes)
	assert.Equal(t, "missing youtube.upload", scopes.Message)
	assert.ErrorIs(t, err, domain.ErrNotEnoughScopes)
}

func TestCompleteAuthorize_EmptyIdentityIsRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["youtube"].authResult = &domain.AuthResult{AccessToken: "at"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)

	_, err = flow.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	assert.ErrorIs(t, err, domain.ErrNotEnoughScopes)
}

func TestCompleteAuthorize_TrialGuard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	old := e.seedConnection(t, "youtube", "chan-1")
	require.NoError(t, e.conns.SoftDelete(ctx, "org-1", old.ID))
	e.scripts["youtube"].authResult = &domain.AuthResult{ID: "chan-1", AccessToken: "at"}

	metered := e.connectFlow(ConnectOptions{Metered: true})
	_, err := metered.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)
	_, err = metered.CompleteAuthorize(ctx, trialOrg, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	assert.ErrorIs(t, err, domain.ErrPreviouslyConnected)

	paying := domain.Organization{ID: "org-1"}
	_, err = metered.BeginAuthorize(ctx, "org-1", "youtube", driving.BeginAuthorizeInput{})
	require.NoError(t, err)
	conn, err := metered.CompleteAuthorize(ctx, paying, "youtube", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	require.NoError(t, err)
	assert.Equal(t, old.ID, conn.ID)
}

func TestCompleteAuthorize_CustomFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["devto"].authResult = &domain.AuthResult{ID: "42", Username: "jane.doe", AccessToken: "api-key"}
	payload := `{"apiKey":"api-key"}`

	conn, err := e.connectFlow(ConnectOptions{}).CompleteAuthorize(ctx, trialOrg, "devto",
		driving.CompleteAuthorizeInput{Code: base64.StdEncoding.EncodeToString([]byte(payload))})
	require.NoError(t, err)

	assert.Equal(t, "none", e.scripts["devto"].authParams[0].CodeVerifier)
	assert.Equal(t, "enc:"+payload, conn.CustomInstanceDetails)
	assert.True(t, conn.OneTimeToken)
	assert.Equal(t, "jane", conn.Name)
	assert.Empty(t, conn.OAuthAppID)
}

func TestCompleteAuthorize_CustomFieldsMustBeBase64(t *testing.T) {
	e := newTestEnv(t)
	e.scripts["devto"].authResult = &domain.AuthResult{ID: "42", AccessToken: "api-key"}

	_, err := e.connectFlow(ConnectOptions{}).CompleteAuthorize(context.Background(), trialOrg, "devto",
		driving.CompleteAuthorizeInput{Code: "%%%"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCompleteAuthorize_ExternalInstanceIsStoredEncrypted(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.scripts["mastodon"].authResult = &domain.AuthResult{ID: "109", AccessToken: "at"}
	flow := e.connectFlow(ConnectOptions{})

	_, err := flow.BeginAuthorize(ctx, "org-1", "mastodon", driving.BeginAuthorizeInput{ExternalURL: "https://social.example"})
	require.NoError(t, err)

	conn, err := flow.CompleteAuthorize(ctx, trialOrg, "mastodon", driving.CompleteAuthorizeInput{Code: "c", State: "st-1"})
	require.NoError(t, err)

	require.NotNil(t, e.scripts["mastodon"].authExt)
	assert.Equal(t, "https://social.example", e.scripts["mastodon"].authExt.URL)
	assert.Equal(t, `enc:{"instanceUrl":"https://social.example"}`, conn.CustomInstanceDetails)
	assert.Equal(t, "Channel_109", conn.Name)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		result domain.AuthResult
		want   string
	}{
		{"explicit name", domain.AuthResult{ID: "1", Name: "Acme"}, "Acme"},
		{"username before dot", domain.AuthResult{ID: "1", Username: "acme.corp"}, "acme"},
		{"username without dot", domain.AuthResult{ID: "1", Username: "acme"}, "acme"},
		{"truncated id", domain.AuthResult{ID: "1234567890"}, "Channel_12345678"},
		{"short id", domain.AuthResult{ID: "12"}, "Channel_12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, displayName(&tt.result))
		})
	}
}
