// Package cli provides the command-line interface for Sercha Connect.
//
// Commands act on behalf of a single organization selected with --org.
// Services are injected by the entry point through SetServices.
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// DefaultOrg is used when neither --org nor SERCHA_CONNECT_ORG is set.
const DefaultOrg = "default"

// OrgEnvVar selects the organization when --org is omitted.
const OrgEnvVar = "SERCHA_CONNECT_ORG"

var version = "dev"

// Services holds the driving ports the commands use.
type Services struct {
	Registry    driving.ProviderRegistry
	Catalog     driving.CredentialCatalog
	OAuthApps   driving.OAuthAppService
	Connect     driving.ConnectService
	Connections driving.ConnectionService
	Schedules   driving.ScheduleService
	Invoker     driving.Invoker
	Settings    driving.SettingsService
	Scheduler   driving.Scheduler
	// Metrics serves the Prometheus exposition format. Optional.
	Metrics http.Handler
}

var (
	providerRegistry  driving.ProviderRegistry
	credentialCatalog driving.CredentialCatalog
	oauthAppService   driving.OAuthAppService
	connectService    driving.ConnectService
	connectionService driving.ConnectionService
	scheduleService   driving.ScheduleService
	invoker           driving.Invoker
	settingsService   driving.SettingsService
	scheduler         driving.Scheduler
	metricsHandler    http.Handler
)

var errNotConfigured = errors.New("service not configured")

// Global flags.
var (
	orgFlag     string
	trialFlag   bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "sercha-connect",
	Short: "Connect third-party accounts and call their APIs",
	Long: `Sercha Connect manages OAuth credentials for third-party platforms.

It stores per-organization OAuth applications, runs the authorize/callback
flow that creates connections, and invokes provider methods on those
connections, refreshing expired tokens transparently.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	defaultOrg := os.Getenv(OrgEnvVar)
	if defaultOrg == "" {
		defaultOrg = DefaultOrg
	}

	rootCmd.PersistentFlags().StringVar(&orgFlag, "org", defaultOrg, "Organization to act for")
	rootCmd.PersistentFlags().BoolVar(&trialFlag, "trial", false, "Treat the organization as trialing")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

// SetServices injects the driving ports.
func SetServices(s Services) {
	providerRegistry = s.Registry
	credentialCatalog = s.Catalog
	oauthAppService = s.OAuthApps
	connectService = s.Connect
	connectionService = s.Connections
	scheduleService = s.Schedules
	invoker = s.Invoker
	settingsService = s.Settings
	scheduler = s.Scheduler
	metricsHandler = s.Metrics
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// organization returns the organization selected by the global flags.
func organization() domain.Organization {
	return domain.Organization{ID: orgFlag, Trialing: trialFlag}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
