package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect supported providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported providers",
	RunE:  runProvidersList,
}

var providersShowCmd = &cobra.Command{
	Use:     "show [provider]",
	Aliases: []string{"fields"},
	Short:   "Show a provider's capabilities and credential fields",
	Args:    cobra.ExactArgs(1),
	RunE:    runProvidersShow,
}

var providersMethodsCmd = &cobra.Command{
	Use:   "methods [provider]",
	Short: "List the methods of one or all providers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProvidersMethods,
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersShowCmd)
	providersCmd.AddCommand(providersMethodsCmd)
	rootCmd.AddCommand(providersCmd)
}

func runProvidersList(cmd *cobra.Command, _ []string) error {
	if providerRegistry == nil {
		return fmt.Errorf("provider registry: %w", errNotConfigured)
	}

	cmd.Println("Providers:")
	for _, id := range providerRegistry.ListIdentifiers() {
		desc, err := providerRegistry.Describe(id)
		if err != nil {
			return err
		}
		cmd.Printf("  %-14s %s\n", desc.ID, desc.Name)
	}
	return nil
}

func runProvidersShow(cmd *cobra.Command, args []string) error {
	if providerRegistry == nil || credentialCatalog == nil {
		return fmt.Errorf("provider registry: %w", errNotConfigured)
	}

	desc, err := providerRegistry.Describe(args[0])
	if err != nil {
		return err
	}

	cmd.Printf("Provider: %s (%s)\n", desc.Name, desc.ID)
	if caps := describeCapabilities(desc); len(caps) > 0 {
		cmd.Printf("Capabilities: %s\n", strings.Join(caps, ", "))
	}
	if len(desc.Scopes) > 0 {
		cmd.Printf("Scopes: %s\n", strings.Join(desc.Scopes, " "))
	}

	fields := credentialCatalog.FieldsFor(desc.ID)
	if len(fields) > 0 {
		cmd.Println("\nOAuth app fields:")
		for _, f := range fields {
			required := ""
			if f.Required {
				required = " (required)"
			}
			cmd.Printf("  %-28s %s [%s]%s\n", f.Key, f.Label, f.Kind, required)
		}
	}

	custom, err := providerRegistry.CustomFields(desc.ID)
	if err != nil {
		return err
	}
	if len(custom) > 0 {
		cmd.Println("\nConnection fields:")
		for _, f := range custom {
			cmd.Printf("  %-28s %s [%s]\n", f.Key, f.Label, f.Kind)
		}
	}
	return nil
}

func runProvidersMethods(cmd *cobra.Command, args []string) error {
	if providerRegistry == nil {
		return fmt.Errorf("provider registry: %w", errNotConfigured)
	}

	var methods []domain.MethodSpec
	if len(args) == 1 {
		var err error
		if methods, err = providerRegistry.Methods(args[0]); err != nil {
			return err
		}
	} else {
		methods = providerRegistry.AllMethods()
	}

	for _, m := range methods {
		cmd.Printf("  %-14s %-24s %s\n", m.Provider, m.Name, m.Description)
	}
	return nil
}

func describeCapabilities(desc domain.ProviderDescriptor) []string {
	var caps []string
	if desc.SupportsCustomFields {
		caps = append(caps, "custom fields")
	}
	if desc.RequiresExternalURL {
		caps = append(caps, "requires instance url")
	}
	if desc.IsOneTimeToken {
		caps = append(caps, "one-time token")
	}
	if desc.SupportsNicknameChange {
		caps = append(caps, "nickname change")
	}
	if desc.SupportsPictureChange {
		caps = append(caps, "picture change")
	}
	if desc.RefreshIsSlow {
		caps = append(caps, "slow refresh")
	}
	if desc.InBetweenSteps {
		caps = append(caps, "setup step")
	}
	return caps
}
