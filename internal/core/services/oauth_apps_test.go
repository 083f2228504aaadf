package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

func TestOAuthAppService_CreateEncryptsSecrets(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	view, err := e.appService.Create(ctx, "org-1", driving.OAuthAppInput{
		Provider: "discord",
		Name:     " Community bot ",
		Fields: map[string]string{
			"DISCORD_CLIENT_ID":     "cid",
			"DISCORD_CLIENT_SECRET": "csecret",
			"DISCORD_BOT_TOKEN_ID":  "bot",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Community bot", view.Name)
	assert.Equal(t, "cid", view.ClientID)
	assert.True(t, view.HasSecret)
	assert.Equal(t, []string{"DISCORD_BOT_TOKEN_ID"}, view.ExtraKeys)

	stored, err := e.apps.Get(ctx, "org-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, "cid", stored.ClientID)
	assert.Equal(t, "enc:csecret", stored.SecretCiphertext)
	assert.Equal(t, `enc:{"DISCORD_BOT_TOKEN_ID":"bot"}`, stored.ExtraCiphertext)
}

func TestOAuthAppService_CreateValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		org   string
		input driving.OAuthAppInput
	}{
		{
			name: "missing organization",
			input: driving.OAuthAppInput{Provider: "youtube", Name: "x", Fields: map[string]string{
				"YOUTUBE_CLIENT_ID": "id", "YOUTUBE_CLIENT_SECRET": "s",
			}},
		},
		{
			name:  "missing name",
			org:   "org-1",
			input: driving.OAuthAppInput{Provider: "youtube", Fields: map[string]string{"YOUTUBE_CLIENT_ID": "id"}},
		},
		{
			name:  "missing secret",
			org:   "org-1",
			input: driving.OAuthAppInput{Provider: "youtube", Name: "x", Fields: map[string]string{"YOUTUBE_CLIENT_ID": "id"}},
		},
		{
			name:  "provider without fields",
			org:   "org-1",
			input: driving.OAuthAppInput{Provider: "mastodon", Name: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.appService.Create(ctx, tt.org, tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestOAuthAppService_UpdateMergesFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createApp(t, "org-1", "discord", "bot", false)

	view, err := e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{
		Name:   "renamed",
		Fields: map[string]string{"DISCORD_CLIENT_SECRET": "rotated"},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", view.Name)
	assert.Equal(t, "bot-id", view.ClientID)

	info, err := e.resolver.Resolve(ctx, "org-1", "discord", driving.ResolveOptions{OAuthAppID: id})
	require.NoError(t, err)
	assert.Equal(t, "rotated", info.Value("DISCORD_CLIENT_SECRET"))
	assert.Equal(t, "bot-bot", info.Value("DISCORD_BOT_TOKEN_ID"))
}

func TestOAuthAppService_UpdateRejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createApp(t, "org-1", "youtube", "yt", false)

	_, err := e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{Provider: "discord"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{Fields: map[string]string{"OTHER": "x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{
		Fields: map[string]string{"YOUTUBE_CLIENT_ID": ""},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.appService.Update(ctx, "org-2", id, driving.OAuthAppInput{Name: "stolen"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOAuthAppService_TrimsFieldValues(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	view, err := e.appService.Create(ctx, "org-1", driving.OAuthAppInput{
		Provider: "discord",
		Name:     "bot",
		Fields: map[string]string{
			"DISCORD_CLIENT_ID":     "  cid\n",
			"DISCORD_CLIENT_SECRET": "\tcsecret ",
			"DISCORD_BOT_TOKEN_ID":  " bot ",
		},
	})
	require.NoError(t, err)

	stored, err := e.apps.Get(ctx, "org-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, "cid", stored.ClientID)
	assert.Equal(t, "enc:csecret", stored.SecretCiphertext)
	assert.Equal(t, `enc:{"DISCORD_BOT_TOKEN_ID":"bot"}`, stored.ExtraCiphertext)

	_, err = e.appService.Update(ctx, "org-1", view.ID, driving.OAuthAppInput{
		Fields: map[string]string{"DISCORD_CLIENT_SECRET": " rotated\n"},
	})
	require.NoError(t, err)
	info, err := e.resolver.Resolve(ctx, "org-1", "discord", driving.ResolveOptions{OAuthAppID: view.ID})
	require.NoError(t, err)
	assert.Equal(t, "rotated", info.Value("DISCORD_CLIENT_SECRET"))
}

func TestOAuthAppService_UpdateClearsDefault(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createApp(t, "org-1", "youtube", "yt", true)

	view, err := e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{Name: "renamed"})
	require.NoError(t, err)
	assert.True(t, view.IsDefault, "nil leaves the default untouched")

	off := false
	view, err = e.appService.Update(ctx, "org-1", id, driving.OAuthAppInput{IsDefault: &off})
	require.NoError(t, err)
	assert.False(t, view.IsDefault)

	stored, err := e.apps.Get(ctx, "org-1", id)
	require.NoError(t, err)
	assert.False(t, stored.IsDefault)
	def, err := e.apps.Default(ctx, "org-1", "youtube")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestOAuthAppService_DefaultSwitching(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.createApp(t, "org-1", "youtube", "a", true)
	b := e.createApp(t, "org-1", "youtube", "b", false)

	require.NoError(t, e.appService.SetDefault(ctx, "org-1", b))

	views, err := e.appService.List(ctx, "org-1", "youtube")
	require.NoError(t, err)
	require.Len(t, views, 2)
	defaults := map[string]bool{}
	for _, v := range views {
		defaults[v.ID] = v.IsDefault
	}
	assert.False(t, defaults[a])
	assert.True(t, defaults[b])
}

func TestOAuthAppService_Delete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createApp(t, "org-1", "youtube", "a", true)

	require.NoError(t, e.appService.Delete(ctx, "org-1", id))

	_, err := e.appService.Get(ctx, "org-1", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	views, err := e.appService.List(ctx, "org-1", "")
	require.NoError(t, err)
	assert.Empty(t, views)
}
