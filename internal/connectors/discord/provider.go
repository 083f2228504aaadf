// Package discord implements the Discord provider.
//
// Authorization installs the application's bot in a server (guild). The
// guild is the connected account; messages are sent by the bot using the
// bot token configured as the third credential field. After connecting, the
// default channel for posts is chosen in a setup step and stored in the
// connection settings under "channel_id".
package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// ID is the provider identifier.
const ID = "discord"

// Credential field keys.
const (
	ClientIDKey     = "DISCORD_CLIENT_ID"
	ClientSecretKey = "DISCORD_CLIENT_SECRET"
	BotTokenKey     = "DISCORD_BOT_TOKEN_ID"
)

// ChannelSetting is the settings key of the default post channel.
const ChannelSetting = "channel_id"

const (
	defaultAuthURL  = "https://discord.com/oauth2/authorize"
	defaultTokenURL = "https://discord.com/api/oauth2/token"
	defaultAPIBase  = "https://discord.com/api/v10"
	cdnBase         = "https://cdn.discordapp.com"

	// botPermissions lets the bot view channels, send messages and change
	// its own nickname.
	botPermissions = "67111936"

	// Text and announcement channels.
	channelTypeText         = 0
	channelTypeAnnouncement = 5
)

var descriptor = domain.ProviderDescriptor{
	ID:                     ID,
	Name:                   "Discord",
	SupportsNicknameChange: true,
	InBetweenSteps:         true,
	Scopes:                 []string{"identify", "guilds", "bot"},
}

var fields = []domain.CredentialField{
	{Key: ClientIDKey, Label: "Client ID", Kind: domain.FieldKindText, Required: true},
	{Key: ClientSecretKey, Label: "Client Secret", Kind: domain.FieldKindSecret, Required: true},
	{Key: BotTokenKey, Label: "Bot Token", Kind: domain.FieldKindSecret, Required: true},
}

var methods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "channels",
		Description: "List the text channels of the connected server",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Provider:    ID,
		Name:        "post",
		Description: "Send a message to a channel of the connected server",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":    map[string]any{"type": "string", "description": "Message content"},
				"channel": map[string]any{"type": "string", "description": "Channel id; defaults to the configured channel"},
			},
			"required": []string{"text"},
		},
	},
}

// Config holds deployment settings and endpoint overrides.
type Config struct {
	RedirectURL string
	HTTPClient  *http.Client

	AuthURL  string
	TokenURL string
	APIBase  string
}

// Registration returns the registry entry of the provider.
func Registration(cfg Config) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: descriptor,
		Fields:     fields,
		Methods:    methods,
		New: func(info *domain.ClientInformation) driven.Provider {
			return New(cfg, info)
		},
	}
}

// Provider talks to Discord on behalf of one call.
type Provider struct {
	flow     *oauthflow.Flow
	api      *httpx.Client
	botToken string
	now      func() time.Time
}

var (
	_ driven.Provider        = (*Provider)(nil)
	_ driven.NicknameChanger = (*Provider)(nil)
)

// New creates a provider bound to the resolved client credentials.
func New(cfg Config, info *domain.ClientInformation) *Provider {
	api := httpx.New(ID, firstNonEmpty(cfg.APIBase, defaultAPIBase), cfg.HTTPClient)
	api.Auth = httpx.Bot

	return &Provider{
		flow: &oauthflow.Flow{
			Config: oauth2.Config{
				ClientID:     info.Value(ClientIDKey),
				ClientSecret: info.Value(ClientSecretKey),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       descriptor.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:   firstNonEmpty(cfg.AuthURL, defaultAuthURL),
					TokenURL:  firstNonEmpty(cfg.TokenURL, defaultTokenURL),
					AuthStyle: oauth2.AuthStyleInParams,
				},
			},
			PKCE:       true,
			AuthParams: map[string]string{"permissions": botPermissions},
			HTTPClient: cfg.HTTPClient,
		},
		api:      api,
		botToken: info.Value(BotTokenKey),
		now:      time.Now,
	}
}

// Descriptor returns the static provider description.
func (p *Provider) Descriptor() domain.ProviderDescriptor {
	return descriptor
}

// GenerateAuthURL builds the bot install URL.
func (p *Provider) GenerateAuthURL(_ context.Context, _ *domain.ExternalInstance) (*domain.AuthURL, error) {
	return p.flow.AuthURL()
}

// Authenticate exchanges the code. The token response names the guild the
// bot was added to.
func (p *Provider) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	_ *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	tok, err := p.flow.Exchange(ctx, params.Code, params.CodeVerifier)
	if err != nil {
		return nil, err
	}

	guild, _ := tok.Extra("guild").(map[string]any)
	id, _ := guild["id"].(string)
	if id == "" {
		return nil, &domain.ScopesError{Message: "the bot was not added to a server"}
	}
	name, _ := guild["name"].(string)
	icon, _ := guild["icon"].(string)

	result := oauthflow.Result(tok, p.now())
	result.ID = id
	result.Name = name
	if icon != "" {
		result.Picture = fmt.Sprintf("%s/icons/%s/%s.png", cdnBase, id, icon)
	}
	result.Settings = map[string]any{"guild_id": id}
	return result, nil
}

// RefreshToken exchanges the user refresh token.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	tok, err := p.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return oauthflow.Result(tok, p.now()), nil
}

// Methods returns the invocable methods.
func (p *Provider) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"channels": p.channels,
		"post":     p.post,
	}
}

// Channel is one entry of the channels method result.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) channels(ctx context.Context, call domain.Call) (any, error) {
	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	}
	path := "/guilds/" + url.PathEscape(call.AccountID) + "/channels"
	if err := p.api.JSON(ctx, http.MethodGet, path, p.botToken, nil, &raw); err != nil {
		return nil, fmt.Errorf("discord: list channels: %w", err)
	}

	out := make([]Channel, 0, len(raw))
	for _, c := range raw {
		if c.Type == channelTypeText || c.Type == channelTypeAnnouncement {
			out = append(out, Channel{ID: c.ID, Name: c.Name})
		}
	}
	return out, nil
}

// Message is the result of the post method.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	URL       string `json:"url"`
}

func (p *Provider) post(ctx context.Context, call domain.Call) (any, error) {
	text := call.StringArg("text")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}

	channel := call.StringArg("channel")
	if channel == "" && call.Connection != nil {
		channel, _ = call.Connection.Settings[ChannelSetting].(string)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: no channel given and none configured", domain.ErrInvalidInput)
	}

	var resp struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
	}
	path := "/channels/" + url.PathEscape(channel) + "/messages"
	if err := p.api.JSON(ctx, http.MethodPost, path, p.botToken, map[string]any{"content": text}, &resp); err != nil {
		return nil, fmt.Errorf("discord: send message: %w", err)
	}

	return Message{
		ID:        resp.ID,
		ChannelID: resp.ChannelID,
		URL:       fmt.Sprintf("https://discord.com/channels/%s/%s/%s", call.AccountID, resp.ChannelID, resp.ID),
	}, nil
}

// ChangeNickname renames the bot in the connected server.
func (p *Provider) ChangeNickname(ctx context.Context, call domain.Call, name string) (string, error) {
	var resp struct {
		Nick string `json:"nick"`
	}
	path := "/guilds/" + url.PathEscape(call.AccountID) + "/members/@me"
	if err := p.api.JSON(ctx, http.MethodPatch, path, p.botToken, map[string]any{"nick": name}, &resp); err != nil {
		return "", fmt.Errorf("discord: change nickname: %w", err)
	}
	if resp.Nick == "" {
		return name, nil
	}
	return resp.Nick, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
