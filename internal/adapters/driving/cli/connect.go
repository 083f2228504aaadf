package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/adapters/driving/oauth"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

var connectCmd = &cobra.Command{
	Use:   "connect [provider]",
	Short: "Connect an account",
	Long: `Connect an account of a provider to the organization.

The authorize URL is opened in the browser and the callback is received
on the configured redirect URL (connect.redirect_url), which must point at
this machine and be registered with the provider.

Providers that take custom fields (dev.to) prompt for them instead.

To run the two halves separately, for example from a web backend, use
'connect begin' and 'connect complete'. They share state through the
ephemeral store, so the redis driver is required across processes.

Examples:
  sercha-connect connect youtube
  sercha-connect connect mastodon --instance-url https://mastodon.social
  sercha-connect connect youtube --refresh UCxxxx`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var connectBeginCmd = &cobra.Command{
	Use:   "begin [provider]",
	Short: "Print the authorize URL of a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectBegin,
}

var connectCompleteCmd = &cobra.Command{
	Use:   "complete [provider]",
	Short: "Finish a connection with the callback code and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectComplete,
}

// Flags for connect commands.
var (
	connectInstanceURL string
	connectAppID       string
	connectRefreshID   string
	connectNoBrowser   bool
	connectTimeout     time.Duration
	connectCode        string
	connectState       string
)

// openBrowser is swapped by tests.
var openBrowser = oauth.OpenBrowser

func init() {
	for _, c := range []*cobra.Command{connectCmd, connectBeginCmd} {
		c.Flags().StringVar(&connectInstanceURL, "instance-url", "", "Instance URL of self-hosted providers")
		c.Flags().StringVar(&connectAppID, "app", "", "OAuth app to use instead of the default")
		c.Flags().StringVar(&connectRefreshID, "refresh", "", "Provider account id of a connection to re-authenticate")
	}
	connectCmd.Flags().BoolVar(&connectNoBrowser, "no-browser", false, "Print the URL instead of opening a browser")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 5*time.Minute, "How long to wait for the callback")

	connectCompleteCmd.Flags().StringVar(&connectCode, "code", "", "Authorization code from the callback")
	connectCompleteCmd.Flags().StringVar(&connectState, "state", "", "State from the callback")
	connectCompleteCmd.Flags().StringVar(&connectAppID, "app", "", "OAuth app used to begin the flow")
	connectCompleteCmd.Flags().StringVar(&connectRefreshID, "refresh", "", "Provider account id of a connection to re-authenticate")

	connectCmd.AddCommand(connectBeginCmd)
	connectCmd.AddCommand(connectCompleteCmd)
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	if connectService == nil || providerRegistry == nil {
		return fmt.Errorf("connect service: %w", errNotConfigured)
	}

	provider := args[0]
	desc, err := providerRegistry.Describe(provider)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if desc.SupportsCustomFields {
		return connectWithCustomFields(ctx, cmd, desc)
	}

	authURL, err := connectService.BeginAuthorize(ctx, orgFlag, provider, beginInput())
	if err != nil {
		return describeConnectError(err)
	}

	server, err := oauth.NewCallbackServer(redirectURL(), oauth.StateFromURL(authURL))
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop() //nolint:errcheck

	cmd.Printf("Open this URL to authorize %s:\n\n  %s\n\n", desc.Name, authURL)
	if !connectNoBrowser {
		if err := openBrowser(authURL); err != nil {
			cmd.Println("Could not open a browser, please open the URL manually.")
		}
	}
	cmd.Println("Waiting for authorization...")

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	cb, err := server.Wait(waitCtx)
	if err != nil {
		return err
	}

	conn, err := connectService.CompleteAuthorize(ctx, organization(), provider, driving.CompleteAuthorizeInput{
		Code:       cb.Code,
		State:      cb.State,
		RefreshID:  connectRefreshID,
		OAuthAppID: connectAppID,
		Timezone:   localTimezone(),
	})
	if err != nil {
		return describeConnectError(err)
	}

	printConnected(cmd, conn)
	return nil
}

func connectWithCustomFields(ctx context.Context, cmd *cobra.Command, desc domain.ProviderDescriptor) error {
	fields, err := providerRegistry.CustomFields(desc.ID)
	if err != nil {
		return err
	}

	values, err := promptCustomFields(cmd, bufio.NewReader(stdin), fields)
	if err != nil {
		return err
	}
	code, err := encodeCustomFields(values)
	if err != nil {
		return err
	}

	conn, err := connectService.CompleteAuthorize(ctx, organization(), desc.ID, driving.CompleteAuthorizeInput{
		Code:      code,
		RefreshID: connectRefreshID,
		Timezone:  localTimezone(),
	})
	if err != nil {
		return describeConnectError(err)
	}

	printConnected(cmd, conn)
	return nil
}

func promptCustomFields(cmd *cobra.Command, reader *bufio.Reader, fields []domain.CustomField) (map[string]string, error) {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		cmd.Printf("%s: ", f.Label)
		var value string
		if f.Kind == domain.FieldKindSecret {
			value = readSecret(reader)
			cmd.Println()
		} else {
			value = readLine(reader)
		}

		if f.Validation != "" {
			re, err := regexp.Compile(f.Validation)
			if err != nil {
				return nil, fmt.Errorf("invalid validation for %s: %w", f.Key, err)
			}
			if !re.MatchString(value) {
				return nil, fmt.Errorf("%w: %s is not valid", domain.ErrInvalidInput, f.Label)
			}
		}
		values[f.Key] = value
	}
	return values, nil
}

// encodeCustomFields produces the code payload custom-field providers expect.
func encodeCustomFields(values map[string]string) (string, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding custom fields: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func runConnectBegin(cmd *cobra.Command, args []string) error {
	if connectService == nil {
		return fmt.Errorf("connect service: %w", errNotConfigured)
	}

	authURL, err := connectService.BeginAuthorize(commandContext(cmd), orgFlag, args[0], beginInput())
	if err != nil {
		return describeConnectError(err)
	}
	if authURL == "" {
		cmd.Println("This provider takes custom fields, run 'sercha-connect connect' instead.")
		return nil
	}
	cmd.Println(authURL)
	return nil
}

func runConnectComplete(cmd *cobra.Command, args []string) error {
	if connectService == nil {
		return fmt.Errorf("connect service: %w", errNotConfigured)
	}
	if connectCode == "" {
		return errors.New("--code is required")
	}

	conn, err := connectService.CompleteAuthorize(commandContext(cmd), organization(), args[0], driving.CompleteAuthorizeInput{
		Code:       connectCode,
		State:      connectState,
		RefreshID:  connectRefreshID,
		OAuthAppID: connectAppID,
		Timezone:   localTimezone(),
	})
	if err != nil {
		return describeConnectError(err)
	}

	printConnected(cmd, conn)
	return nil
}

func beginInput() driving.BeginAuthorizeInput {
	return driving.BeginAuthorizeInput{
		RefreshID:   connectRefreshID,
		ExternalURL: connectInstanceURL,
		OAuthAppID:  connectAppID,
	}
}

func redirectURL() string {
	if settingsService != nil {
		if s, err := settingsService.Get(); err == nil && s.Connect.RedirectURL != "" {
			return s.Connect.RedirectURL
		}
	}
	return domain.DefaultRedirectURL
}

// localTimezone returns the local offset from UTC in minutes.
func localTimezone() int {
	_, offset := time.Now().Zone()
	return offset / 60
}

func printConnected(cmd *cobra.Command, conn *domain.Connection) {
	cmd.Printf("Connected %s (%s)\n", conn.Name, conn.Provider)
	cmd.Printf("  Connection ID: %s\n", conn.ID)
	if conn.InBetweenSteps {
		cmd.Println("  Finish the setup with 'sercha-connect connections settings' and")
		cmd.Printf("  'sercha-connect connections setup-complete %s'.\n", conn.ID)
	}
}

// describeConnectError adds guidance to the errors a user can act on.
func describeConnectError(err error) error {
	var scopes *domain.ScopesError
	switch {
	case errors.As(err, &scopes):
		return fmt.Errorf("%w\nGrant every requested permission and try again", err)
	case errors.Is(err, domain.ErrNoCredentialsConfigured):
		return fmt.Errorf("%w\nAdd one with 'sercha-connect apps add' or set the provider's environment variables", err)
	case errors.Is(err, domain.ErrExternalURLRequired):
		return fmt.Errorf("%w\nPass --instance-url", err)
	case errors.Is(err, domain.ErrInvalidState):
		return fmt.Errorf("%w\nThe authorization expired or was already used, start again", err)
	case errors.Is(err, domain.ErrPreviouslyConnected):
		return fmt.Errorf("%w\nTrial organizations cannot reconnect an account that was removed", err)
	}
	return err
}
