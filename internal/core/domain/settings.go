package domain

import "time"

// EphemeralDriver selects the correlation store implementation.
type EphemeralDriver string

const (
	// EphemeralMemory keeps correlation state in process. Single node only.
	EphemeralMemory EphemeralDriver = "memory"
	// EphemeralRedis shares correlation state across nodes.
	EphemeralRedis EphemeralDriver = "redis"
)

// IsValid returns true if the driver is recognised.
func (d EphemeralDriver) IsValid() bool {
	return d == EphemeralMemory || d == EphemeralRedis
}

// AppSettings holds all application settings.
type AppSettings struct {
	Storage   StorageSettings
	Ephemeral EphemeralSettings
	Connect   ConnectSettings
	Invoke    InvokeSettings
	Scheduler SchedulerSettings
}

// StorageSettings configures the durable store.
type StorageSettings struct {
	// DataDir holds the SQLite database. Empty means ~/.sercha-connect/data.
	DataDir string
}

// EphemeralSettings configures the correlation store.
type EphemeralSettings struct {
	Driver    EphemeralDriver
	RedisAddr string
	RedisDB   int
}

// ConnectSettings configures the connect flow.
type ConnectSettings struct {
	// AllowedProviders limits which providers can be connected. Empty allows all.
	AllowedProviders []string
	// Metered enables the trial reconnect guard.
	Metered bool
	// RedirectURL is the OAuth callback URL registered with the providers.
	RedirectURL string
}

// InvokeSettings configures the invocation engine.
type InvokeSettings struct {
	// MaxRetries bounds refresh-and-retry cycles per invocation.
	MaxRetries int
	// SlowRefreshDelay is waited after refreshing providers that declare RefreshIsSlow.
	SlowRefreshDelay time.Duration
}

// SchedulerSettings configures the background scheduler.
type SchedulerSettings struct {
	Enabled          bool
	RefreshInterval  time.Duration
	RefreshWindow    time.Duration
	DispatchInterval time.Duration
}

// Defaults.
const (
	DefaultRedirectURL      = "http://localhost:18080/callback"
	DefaultMaxRetries       = 1
	DefaultSlowRefreshDelay = 10 * time.Second
	DefaultRefreshInterval  = 45 * time.Minute
	DefaultRefreshWindow    = time.Hour
	DefaultDispatchInterval = time.Minute
)

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Ephemeral: EphemeralSettings{
			Driver:    EphemeralMemory,
			RedisAddr: "localhost:6379",
		},
		Connect: ConnectSettings{
			RedirectURL: DefaultRedirectURL,
		},
		Invoke: InvokeSettings{
			MaxRetries:       DefaultMaxRetries,
			SlowRefreshDelay: DefaultSlowRefreshDelay,
		},
		Scheduler: SchedulerSettings{
			Enabled:          true,
			RefreshInterval:  DefaultRefreshInterval,
			RefreshWindow:    DefaultRefreshWindow,
			DispatchInterval: DefaultDispatchInterval,
		},
	}
}

// SchedulerConfig derives the scheduler task configuration from the settings.
func (s AppSettings) SchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:       s.Scheduler.Enabled,
		RefreshWindow: s.Scheduler.RefreshWindow,
		TaskConfigs: map[string]TaskConfig{
			TaskIDOAuthRefresh: {
				Enabled:  true,
				Interval: s.Scheduler.RefreshInterval,
			},
			TaskIDInvocationDispatch: {
				Enabled:  true,
				Interval: s.Scheduler.DispatchInterval,
			},
		},
	}
}
