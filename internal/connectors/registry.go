package connectors

import (
	"net/http"

	"github.com/custodia-labs/sercha-connect/internal/connectors/devto"
	"github.com/custodia-labs/sercha-connect/internal/connectors/discord"
	"github.com/custodia-labs/sercha-connect/internal/connectors/github"
	"github.com/custodia-labs/sercha-connect/internal/connectors/linkedin"
	"github.com/custodia-labs/sercha-connect/internal/connectors/mastodon"
	"github.com/custodia-labs/sercha-connect/internal/connectors/youtube"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// Config is shared by every provider.
type Config struct {
	// RedirectURL is the OAuth callback registered with each platform.
	RedirectURL string
	// HTTPClient is used for provider traffic. Nil uses per-provider defaults.
	HTTPClient *http.Client
}

// Registrations returns every provider in catalog order.
func Registrations(cfg Config) []driven.ProviderRegistration {
	li := linkedin.Config{RedirectURL: cfg.RedirectURL, HTTPClient: cfg.HTTPClient}

	return []driven.ProviderRegistration{
		youtube.Registration(youtube.Config{RedirectURL: cfg.RedirectURL, HTTPClient: cfg.HTTPClient}),
		linkedin.Registration(li),
		linkedin.PageRegistration(li),
		discord.Registration(discord.Config{RedirectURL: cfg.RedirectURL, HTTPClient: cfg.HTTPClient}),
		github.Registration(github.Config{RedirectURL: cfg.RedirectURL, HTTPClient: cfg.HTTPClient}),
		mastodon.Registration(mastodon.Config{RedirectURL: cfg.RedirectURL, HTTPClient: cfg.HTTPClient}),
		devto.Registration(devto.Config{HTTPClient: cfg.HTTPClient}),
	}
}
