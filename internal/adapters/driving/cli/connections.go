package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Manage connected accounts",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts",
	RunE:  runConnectionsList,
}

var connectionsShowCmd = &cobra.Command{
	Use:   "show [connection-id]",
	Short: "Show a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionsShow,
}

var connectionsDisableCmd = &cobra.Command{
	Use:   "disable [connection-id]",
	Short: "Disable a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionAction(cmd, args[0], "Disabled", driving.ConnectionService.Disable)
	},
}

var connectionsEnableCmd = &cobra.Command{
	Use:   "enable [connection-id]",
	Short: "Enable a disabled connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionAction(cmd, args[0], "Enabled", driving.ConnectionService.Enable)
	},
}

var connectionsRemoveCmd = &cobra.Command{
	Use:   "remove [connection-id]",
	Short: "Remove a connection, keeping its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionAction(cmd, args[0], "Removed", driving.ConnectionService.Delete)
	},
}

var connectionsPurgeCmd = &cobra.Command{
	Use:   "purge [connection-id]",
	Short: "Permanently delete a connection and its scheduled calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionAction(cmd, args[0], "Purged", driving.ConnectionService.Purge)
	},
}

var connectionsSetupCompleteCmd = &cobra.Command{
	Use:   "setup-complete [connection-id]",
	Short: "Mark the setup step of a connection as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionAction(cmd, args[0], "Completed setup of", driving.ConnectionService.CompleteSetup)
	},
}

var connectionsRenameCmd = &cobra.Command{
	Use:   "rename [connection-id] [name]",
	Short: "Change the account name",
	Args:  cobra.ExactArgs(2),
	RunE:  runConnectionsRename,
}

var connectionsPictureCmd = &cobra.Command{
	Use:   "picture [connection-id] [url]",
	Short: "Change the account picture",
	Args:  cobra.ExactArgs(2),
	RunE:  runConnectionsPicture,
}

var connectionsSettingsCmd = &cobra.Command{
	Use:   "settings [connection-id] [json]",
	Short: "Replace the provider settings of a connection",
	Long: `Replace the provider-specific settings blob of a connection.

Example:
  sercha-connect connections settings 4f1c... '{"page_id":"1234"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runConnectionsSettings,
}

func init() {
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsShowCmd)
	connectionsCmd.AddCommand(connectionsDisableCmd)
	connectionsCmd.AddCommand(connectionsEnableCmd)
	connectionsCmd.AddCommand(connectionsRemoveCmd)
	connectionsCmd.AddCommand(connectionsPurgeCmd)
	connectionsCmd.AddCommand(connectionsSetupCompleteCmd)
	connectionsCmd.AddCommand(connectionsRenameCmd)
	connectionsCmd.AddCommand(connectionsPictureCmd)
	connectionsCmd.AddCommand(connectionsSettingsCmd)
	rootCmd.AddCommand(connectionsCmd)
}

func runConnectionsList(cmd *cobra.Command, _ []string) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	conns, err := connectionService.List(commandContext(cmd), orgFlag)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	if len(conns) == 0 {
		cmd.Println("No connections.")
		cmd.Println("Connect an account with: sercha-connect connect <provider>")
		return nil
	}

	cmd.Println("Connections:")
	for i := range conns {
		c := &conns[i]
		cmd.Printf("  %s  %-14s %-24s %s\n", c.ID, c.Provider, c.Name, connectionState(c))
	}
	return nil
}

func runConnectionsShow(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	c, err := connectionService.Get(commandContext(cmd), orgFlag, args[0])
	if err != nil {
		return err
	}

	cmd.Printf("Connection: %s\n", c.ID)
	cmd.Printf("  Provider: %s\n", c.Provider)
	cmd.Printf("  Account: %s\n", c.InternalID)
	cmd.Printf("  Name: %s\n", c.Name)
	if c.Username != "" {
		cmd.Printf("  Username: %s\n", c.Username)
	}
	if c.Picture != "" {
		cmd.Printf("  Picture: %s\n", c.Picture)
	}
	cmd.Printf("  State: %s\n", connectionState(c))
	if !c.TokenExpiresAt.IsZero() {
		cmd.Printf("  Token expires: %s\n", c.TokenExpiresAt.Format(time.RFC3339))
	}
	if c.OAuthAppID != "" {
		cmd.Printf("  OAuth app: %s\n", c.OAuthAppID)
	}
	if len(c.Settings) > 0 {
		raw, err := json.Marshal(c.Settings)
		if err == nil {
			cmd.Printf("  Settings: %s\n", raw)
		}
	}
	cmd.Printf("  Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	return nil
}

func connectionState(c *domain.Connection) string {
	switch {
	case c.Status != domain.ConnectionActive:
		return string(c.Status)
	case c.RefreshNeeded:
		return "reconnect required"
	case c.InBetweenSteps:
		return "setup pending"
	}
	return "active"
}

type connectionOp func(svc driving.ConnectionService, ctx context.Context, orgID, id string) error

func connectionAction(cmd *cobra.Command, id, verb string, op connectionOp) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	if err := op(connectionService, commandContext(cmd), orgFlag, id); err != nil {
		return err
	}
	cmd.Printf("%s connection %s\n", verb, id)
	return nil
}

func runConnectionsRename(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	c, err := connectionService.ChangeNickname(commandContext(cmd), orgFlag, args[0], args[1])
	if err != nil {
		return err
	}
	cmd.Printf("Renamed connection %s to %s\n", c.ID, c.Name)
	return nil
}

func runConnectionsPicture(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	c, err := connectionService.ChangePicture(commandContext(cmd), orgFlag, args[0], args[1])
	if err != nil {
		return err
	}
	cmd.Printf("Updated picture of connection %s\n", c.ID)
	return nil
}

func runConnectionsSettings(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return fmt.Errorf("connection service: %w", errNotConfigured)
	}

	var settings map[string]any
	if err := json.Unmarshal([]byte(args[1]), &settings); err != nil {
		return fmt.Errorf("%w: settings must be a JSON object", domain.ErrInvalidInput)
	}
	if err := connectionService.UpdateSettings(commandContext(cmd), orgFlag, args[0], settings); err != nil {
		return err
	}
	cmd.Printf("Updated settings of connection %s\n", args[0])
	return nil
}
