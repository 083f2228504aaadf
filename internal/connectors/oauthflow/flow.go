// Package oauthflow runs the OAuth 2.0 authorization code grant shared by
// the redirect-based providers.
package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// Flow wraps an oauth2.Config with the options a provider needs.
type Flow struct {
	Config oauth2.Config

	// PKCE adds an S256 code challenge to the authorize URL and sends the
	// verifier on exchange.
	PKCE bool

	// AuthParams are extra authorize URL parameters (e.g. access_type=offline).
	AuthParams map[string]string

	// HTTPClient overrides the client used for token requests.
	HTTPClient *http.Client
}

// AuthURL builds an authorize URL with a fresh state and, when PKCE is
// enabled, a fresh code verifier.
func (f *Flow) AuthURL() (*domain.AuthURL, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	keys := make([]string, 0, len(f.AuthParams))
	for k := range f.AuthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]oauth2.AuthCodeOption, 0, len(keys)+1)
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, f.AuthParams[k]))
	}

	var verifier string
	if f.PKCE {
		verifier, err = GenerateVerifier()
		if err != nil {
			return nil, fmt.Errorf("generate code verifier: %w", err)
		}
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	return &domain.AuthURL{
		URL:          f.Config.AuthCodeURL(state, opts...),
		CodeVerifier: verifier,
		State:        state,
	}, nil
}

// Exchange trades an authorization code for a token.
func (f *Flow) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, &domain.ScopesError{Message: "authorization code missing"}
	}

	var opts []oauth2.AuthCodeOption
	if f.PKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := f.Config.Exchange(f.context(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new token.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token missing")
	}

	src := f.Config.TokenSource(f.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// Client returns an HTTP client that sends accessToken as a bearer token.
func (f *Flow) Client(ctx context.Context, accessToken string) *http.Client {
	return oauth2.NewClient(f.context(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

func (f *Flow) context(ctx context.Context) context.Context {
	if f.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
}

// Result converts a token into an AuthResult without account details.
func Result(tok *oauth2.Token, now time.Time) *domain.AuthResult {
	r := &domain.AuthResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if r.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		r.ExpiresIn = int64(tok.Expiry.Sub(now).Seconds())
	}
	return r
}

// GrantedScopes returns the scopes echoed in the token response.
// Space and comma separated lists are both accepted.
func GrantedScopes(tok *oauth2.Token) []string {
	raw, _ := tok.Extra("scope").(string)
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// RequireScopes checks that every required scope was granted.
// Tokens that do not echo scopes pass.
func RequireScopes(tok *oauth2.Token, required []string) error {
	granted := GrantedScopes(tok)
	if len(granted) == 0 {
		return nil
	}

	var missing []string
	for _, s := range required {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return &domain.ScopesError{Message: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}
