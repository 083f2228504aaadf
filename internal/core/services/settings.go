package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyDataDir          = "storage.data_dir"
	keyEphemeralDriver  = "ephemeral.driver"
	keyRedisAddr        = "ephemeral.redis_addr"
	keyRedisDB          = "ephemeral.redis_db"
	keyAllowedProviders = "connect.allowed_providers"
	keyMetered          = "connect.metered"
	keyRedirectURL      = "connect.redirect_url"
	keyMaxRetries       = "invoke.max_retries"
	keySlowRefreshDelay = "invoke.slow_refresh_delay"
	keySchedulerEnabled = "scheduler.enabled"
	keyRefreshInterval  = "scheduler.refresh_interval"
	keyRefreshWindow    = "scheduler.refresh_window"
	keyDispatchInterval = "scheduler.dispatch_interval"
)

type settingKind int

const (
	kindString settingKind = iota
	kindInt
	kindBool
	kindDuration
	kindList
)

var settingKinds = map[string]settingKind{
	keyDataDir:          kindString,
	keyEphemeralDriver:  kindString,
	keyRedisAddr:        kindString,
	keyRedisDB:          kindInt,
	keyAllowedProviders: kindList,
	keyMetered:          kindBool,
	keyRedirectURL:      kindString,
	keyMaxRetries:       kindInt,
	keySlowRefreshDelay: kindDuration,
	keySchedulerEnabled: kindBool,
	keyRefreshInterval:  kindDuration,
	keyRefreshWindow:    kindDuration,
	keyDispatchInterval: kindDuration,
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			DataDir: s.configStore.GetString(keyDataDir),
		},
		Ephemeral: domain.EphemeralSettings{
			Driver:    s.getDriver(defaults.Ephemeral.Driver),
			RedisAddr: s.getString(keyRedisAddr, defaults.Ephemeral.RedisAddr),
			RedisDB:   s.configStore.GetInt(keyRedisDB),
		},
		Connect: domain.ConnectSettings{
			AllowedProviders: s.configStore.GetStringSlice(keyAllowedProviders),
			Metered:          s.getBool(keyMetered, defaults.Connect.Metered),
			RedirectURL:      s.getString(keyRedirectURL, defaults.Connect.RedirectURL),
		},
		Invoke: domain.InvokeSettings{
			MaxRetries:       s.getInt(keyMaxRetries, defaults.Invoke.MaxRetries),
			SlowRefreshDelay: s.getDuration(keySlowRefreshDelay, defaults.Invoke.SlowRefreshDelay),
		},
		Scheduler: domain.SchedulerSettings{
			Enabled:          s.getBool(keySchedulerEnabled, defaults.Scheduler.Enabled),
			RefreshInterval:  s.getDuration(keyRefreshInterval, defaults.Scheduler.RefreshInterval),
			RefreshWindow:    s.getDuration(keyRefreshWindow, defaults.Scheduler.RefreshWindow),
			DispatchInterval: s.getDuration(keyDispatchInterval, defaults.Scheduler.DispatchInterval),
		},
	}

	return settings, nil
}

// Set validates and persists a single setting.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var stored any
	switch kind {
	case kindString:
		if key == keyEphemeralDriver && !domain.EphemeralDriver(value).IsValid() {
			return fmt.Errorf("%w: invalid ephemeral driver %q", domain.ErrInvalidInput, value)
		}
		stored = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		stored = n
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		stored = b
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration like 30s or 1h", domain.ErrInvalidInput, key)
		}
		stored = d.String()
	case kindList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		stored = items
	}

	if err := s.configStore.Set(key, stored); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys returns the recognised setting keys, sorted.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s.configStore.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getDriver(defaultVal domain.EphemeralDriver) domain.EphemeralDriver {
	driver := domain.EphemeralDriver(s.configStore.GetString(keyEphemeralDriver))
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}
