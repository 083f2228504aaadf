package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage OAuth applications",
	Long: `Add, list, update and remove the organization's OAuth applications.

An OAuth application holds the client credentials registered with a
provider. The default application of a provider is used by 'connect' and
'invoke' unless another one is selected. Without any application the
credentials are read from the environment (see 'providers show').

Examples:
  # Interactive
  sercha-connect apps add --provider youtube

  # Non-interactive
  sercha-connect apps add --provider github --name "Org app" --default \
    --field GITHUB_CLIENT_ID=xxx --field GITHUB_CLIENT_SECRET=yyy`,
}

var appsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an OAuth application",
	RunE:  runAppsAdd,
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List OAuth applications",
	RunE:  runAppsList,
}

var appsShowCmd = &cobra.Command{
	Use:   "show [app-id]",
	Short: "Show an OAuth application",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsShow,
}

var appsUpdateCmd = &cobra.Command{
	Use:   "update [app-id]",
	Short: "Rename an application or rotate its credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsUpdate,
}

var appsDefaultCmd = &cobra.Command{
	Use:   "default [app-id]",
	Short: "Make an application the provider default",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsDefault,
}

var appsRemoveCmd = &cobra.Command{
	Use:   "remove [app-id]",
	Short: "Remove an OAuth application",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsRemove,
}

// Flags for apps commands.
var (
	appsProvider  string
	appsName      string
	appsDefault   bool
	appsFields    []string
	appsListOwner string
)

func init() {
	appsAddCmd.Flags().StringVar(&appsProvider, "provider", "", "Provider identifier")
	appsAddCmd.Flags().StringVar(&appsName, "name", "", "Name of the application")
	appsAddCmd.Flags().BoolVar(&appsDefault, "default", false, "Make it the provider default")
	appsAddCmd.Flags().StringArrayVar(&appsFields, "field", nil, "Credential field as KEY=VALUE (repeatable)")

	appsUpdateCmd.Flags().StringVar(&appsName, "name", "", "New name")
	appsUpdateCmd.Flags().BoolVar(&appsDefault, "default", false, "Set (--default) or clear (--default=false) the provider default")
	appsUpdateCmd.Flags().StringArrayVar(&appsFields, "field", nil, "Credential field as KEY=VALUE (repeatable)")

	appsListCmd.Flags().StringVar(&appsListOwner, "provider", "", "Only list applications of this provider")

	appsCmd.AddCommand(appsAddCmd)
	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsShowCmd)
	appsCmd.AddCommand(appsUpdateCmd)
	appsCmd.AddCommand(appsDefaultCmd)
	appsCmd.AddCommand(appsRemoveCmd)
	rootCmd.AddCommand(appsCmd)
}

func runAppsAdd(cmd *cobra.Command, _ []string) error {
	if oauthAppService == nil || providerRegistry == nil || credentialCatalog == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	fields, err := parseFieldFlags(appsFields)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(stdin)

	provider := appsProvider
	if provider == "" {
		if provider, err = chooseProvider(cmd, reader); err != nil {
			return err
		}
	}

	declared := credentialCatalog.FieldsFor(provider)
	if len(declared) == 0 {
		return fmt.Errorf("%s does not use OAuth applications", provider)
	}

	name := appsName
	if name == "" {
		name = provider + " app"
		if len(appsFields) == 0 {
			cmd.Printf("Name [%s]: ", name)
			if input := readLine(reader); input != "" {
				name = input
			}
		}
	}

	// Prompt only for what the flags left out.
	for _, f := range declared {
		if _, ok := fields[f.Key]; ok || !f.Required {
			continue
		}
		cmd.Printf("%s (%s): ", f.Label, f.Key)
		var value string
		if f.Kind == domain.FieldKindSecret {
			value = readSecret(reader)
			cmd.Println()
		} else {
			value = readLine(reader)
		}
		if value == "" {
			return fmt.Errorf("%s is required", f.Key)
		}
		fields[f.Key] = value
	}

	isDefault := appsDefault
	view, err := oauthAppService.Create(commandContext(cmd), orgFlag, driving.OAuthAppInput{
		Provider:  provider,
		Name:      name,
		Fields:    fields,
		IsDefault: &isDefault,
	})
	if err != nil {
		return fmt.Errorf("failed to create OAuth app: %w", err)
	}

	cmd.Printf("OAuth app created: %s\n", view.ID)
	if view.IsDefault {
		cmd.Printf("It is now the default for %s.\n", view.Provider)
	}
	return nil
}

func chooseProvider(cmd *cobra.Command, reader *bufio.Reader) (string, error) {
	var candidates []string
	for _, id := range providerRegistry.ListIdentifiers() {
		if len(credentialCatalog.FieldsFor(id)) > 0 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no provider uses OAuth applications")
	}

	cmd.Println("Providers:")
	for i, id := range candidates {
		cmd.Printf("  %d. %s\n", i+1, id)
	}
	cmd.Print("\nSelect provider number [1]: ")
	return candidates[parseChoice(readLine(reader), len(candidates), 1)-1], nil
}

func runAppsList(cmd *cobra.Command, _ []string) error {
	if oauthAppService == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	apps, err := oauthAppService.List(commandContext(cmd), orgFlag, appsListOwner)
	if err != nil {
		return fmt.Errorf("failed to list OAuth apps: %w", err)
	}

	if len(apps) == 0 {
		cmd.Println("No configured OAuth apps.")
		cmd.Println("Add one with: sercha-connect apps add")
		return nil
	}

	cmd.Println("Configured OAuth apps:")
	cmd.Println()
	for i := range apps {
		printApp(cmd, &apps[i])
		cmd.Println()
	}
	return nil
}

func runAppsShow(cmd *cobra.Command, args []string) error {
	if oauthAppService == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	app, err := oauthAppService.Get(commandContext(cmd), orgFlag, args[0])
	if err != nil {
		return fmt.Errorf("OAuth app not found: %w", err)
	}
	printApp(cmd, app)
	return nil
}

func printApp(cmd *cobra.Command, app *domain.OAuthAppView) {
	marker := ""
	if app.IsDefault {
		marker = " (default)"
	}
	cmd.Printf("  %s%s\n", app.ID, marker)
	cmd.Printf("    Name: %s\n", app.Name)
	cmd.Printf("    Provider: %s\n", app.Provider)
	cmd.Printf("    Client ID: %s\n", maskSecret(app.ClientID))
	cmd.Printf("    Secret: %s\n", map[bool]string{true: "set", false: "not set"}[app.HasSecret])
	if len(app.ExtraKeys) > 0 {
		cmd.Printf("    Extra fields: %s\n", strings.Join(app.ExtraKeys, ", "))
	}
	cmd.Printf("    Created: %s\n", app.CreatedAt.Format(time.RFC3339))
}

func runAppsUpdate(cmd *cobra.Command, args []string) error {
	if oauthAppService == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	fields, err := parseFieldFlags(appsFields)
	if err != nil {
		return err
	}
	input := driving.OAuthAppInput{Name: appsName, Fields: fields}
	if cmd.Flags().Changed("default") {
		isDefault := appsDefault
		input.IsDefault = &isDefault
	}
	if appsName == "" && len(fields) == 0 && input.IsDefault == nil {
		return errors.New("nothing to update: use --name, --field or --default")
	}

	view, err := oauthAppService.Update(commandContext(cmd), orgFlag, args[0], input)
	if err != nil {
		return fmt.Errorf("failed to update OAuth app: %w", err)
	}
	cmd.Printf("Updated OAuth app: %s (%s)\n", view.Name, view.ID)
	return nil
}

func runAppsDefault(cmd *cobra.Command, args []string) error {
	if oauthAppService == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	if err := oauthAppService.SetDefault(commandContext(cmd), orgFlag, args[0]); err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}
	cmd.Printf("OAuth app %s is now the default.\n", args[0])
	return nil
}

func runAppsRemove(cmd *cobra.Command, args []string) error {
	if oauthAppService == nil {
		return fmt.Errorf("oauth app service: %w", errNotConfigured)
	}

	ctx := commandContext(cmd)
	app, err := oauthAppService.Get(ctx, orgFlag, args[0])
	if err != nil {
		return fmt.Errorf("OAuth app not found: %w", err)
	}
	if err := oauthAppService.Delete(ctx, orgFlag, args[0]); err != nil {
		return fmt.Errorf("failed to remove OAuth app: %w", err)
	}

	cmd.Printf("Removed OAuth app: %s (%s)\n", app.Name, app.ID)
	return nil
}

// parseFieldFlags turns KEY=VALUE pairs into a map.
func parseFieldFlags(pairs []string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected KEY=VALUE", pair)
		}
		fields[key] = value
	}
	return fields, nil
}
