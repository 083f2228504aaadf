package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change storage, connect flow, invocation and scheduler settings.

Settings are stored in ~/.sercha-connect/config.toml. Every key can be
overridden by an environment variable, e.g. connect.redirect_url by
SERCHA_CONNECT_CONNECT_REDIRECT_URL.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Show current settings",
	RunE:    runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change a setting",
	Long: `Change a single setting. Durations use Go syntax (30s, 45m, 1h) and
lists are comma-separated.

Examples:
  sercha-connect settings set ephemeral.driver redis
  sercha-connect settings set connect.allowed_providers youtube,github
  sercha-connect settings set scheduler.refresh_window 2h`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the recognised setting keys",
	RunE:  runSettingsKeys,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service: %w", errNotConfigured)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Storage]")
	dataDir := settings.Storage.DataDir
	if dataDir == "" {
		dataDir = "(default)"
	}
	cmd.Printf("  Data dir: %s\n", dataDir)
	cmd.Println()

	cmd.Println("[Ephemeral]")
	cmd.Printf("  Driver: %s\n", settings.Ephemeral.Driver)
	if settings.Ephemeral.Driver == domain.EphemeralRedis {
		cmd.Printf("  Redis: %s (db %d)\n", settings.Ephemeral.RedisAddr, settings.Ephemeral.RedisDB)
	}
	cmd.Println()

	cmd.Println("[Connect]")
	allowed := "all"
	if len(settings.Connect.AllowedProviders) > 0 {
		allowed = strings.Join(settings.Connect.AllowedProviders, ", ")
	}
	cmd.Printf("  Allowed providers: %s\n", allowed)
	cmd.Printf("  Metered: %s\n", yesNo(settings.Connect.Metered))
	cmd.Printf("  Redirect URL: %s\n", settings.Connect.RedirectURL)
	cmd.Println()

	cmd.Println("[Invoke]")
	cmd.Printf("  Max retries: %d\n", settings.Invoke.MaxRetries)
	cmd.Printf("  Slow refresh delay: %s\n", settings.Invoke.SlowRefreshDelay)
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled: %s\n", yesNo(settings.Scheduler.Enabled))
	cmd.Printf("  Refresh interval: %s\n", settings.Scheduler.RefreshInterval)
	cmd.Printf("  Refresh window: %s\n", settings.Scheduler.RefreshWindow)
	cmd.Printf("  Dispatch interval: %s\n", settings.Scheduler.DispatchInterval)

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service: %w", errNotConfigured)
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return err
	}
	cmd.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service: %w", errNotConfigured)
	}

	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// stdin is swapped by tests.
var stdin io.Reader = os.Stdin

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readSecret reads without echo from a terminal, falling back to a plain line.
func readSecret(reader *bufio.Reader) string {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	return readLine(reader)
}

func maskSecret(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
