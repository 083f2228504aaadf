// Command sercha-connect manages OAuth connections to third-party platforms.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-connect/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-connect/internal/adapters/driven/crypto/secretbox"
	ephemeralmemory "github.com/custodia-labs/sercha-connect/internal/adapters/driven/ephemeral/memory"
	ephemeralredis "github.com/custodia-labs/sercha-connect/internal/adapters/driven/ephemeral/redis"
	"github.com/custodia-labs/sercha-connect/internal/adapters/driven/metrics"
	"github.com/custodia-labs/sercha-connect/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-connect/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-connect/internal/connectors"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/services"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	// A missing .env is fine.
	_ = godotenv.Load()

	configStore, err := file.NewConfigStore("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: config: %v\n", err)
		return 1
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: settings: %v\n", err)
		return 1
	}

	store, err := sqlite.NewStore(settings.Storage.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: storage: %v\n", err)
		return 1
	}
	defer store.Close() //nolint:errcheck

	ephemeral, closeEphemeral, err := openEphemeral(ctx, settings.Ephemeral)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: ephemeral store: %v\n", err)
		return 1
	}
	defer closeEphemeral()

	cipher, err := openCipher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: master key: %v\n", err)
		return 1
	}

	regs := connectors.Registrations(connectors.Config{RedirectURL: settings.Connect.RedirectURL})
	registry, err := services.NewProviderRegistry(regs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: providers: %v\n", err)
		return 1
	}
	catalog := services.NewCredentialCatalog(regs...)
	resolver := services.NewCredentialResolver(catalog, store.OAuthAppStore(), cipher)
	sink := metrics.New()

	invoker := services.NewInvoker(registry, resolver, store.ConnectionStore(), cipher, services.InvokeOptions{
		MaxRetries:       settings.Invoke.MaxRetries,
		SlowRefreshDelay: settings.Invoke.SlowRefreshDelay,
		Metrics:          sink,
	})

	cli.SetServices(cli.Services{
		Registry:  registry,
		Catalog:   catalog,
		OAuthApps: services.NewOAuthAppService(store.OAuthAppStore(), catalog, cipher),
		Connect: services.NewConnectFlow(registry, resolver, store.ConnectionStore(), ephemeral, cipher, services.ConnectOptions{
			AllowedProviders: settings.Connect.AllowedProviders,
			Metered:          settings.Connect.Metered,
		}),
		Connections: services.NewConnectionService(store.ConnectionStore(), registry, invoker),
		Schedules:   services.NewScheduleService(store.InvocationStore(), store.ConnectionStore(), registry),
		Invoker:     invoker,
		Settings:    settingsService,
		Scheduler: services.NewScheduler(
			settings.SchedulerConfig(),
			store.SchedulerStore(),
			store.ConnectionStore(),
			store.InvocationStore(),
			invoker,
		),
		Metrics: sink.Handler(),
	})
	cli.SetVersion(version)

	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}

func openEphemeral(ctx context.Context, cfg domain.EphemeralSettings) (driven.EphemeralStore, func(), error) {
	if cfg.Driver == domain.EphemeralRedis {
		s, err := ephemeralredis.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using redis correlation store", "addr", cfg.RedisAddr)
		return s, func() { _ = s.Close() }, nil
	}
	return ephemeralmemory.New(time.Minute), func() {}, nil
}

// openCipher prefers the key in the environment and falls back to a key
// file next to the configuration.
func openCipher() (*secretbox.Cipher, error) {
	if v, ok := os.LookupEnv(secretbox.EnvVar); ok && strings.TrimSpace(v) != "" {
		return secretbox.FromEnv(nil)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return secretbox.FromFile(filepath.Join(home, ".sercha-connect", "master.key"))
}
