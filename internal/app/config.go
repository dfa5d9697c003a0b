package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/commons-cli/internal/credstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageBackend represents the credential storage backends supported.
type StorageBackend string

const (
	StorageBackendKeyring StorageBackend = "keyring"
	StorageBackendFile    StorageBackend = "file"
	StorageBackendMemory  StorageBackend = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigPlatformBaseURL  = "https://api.commons.app"
	DefaultConfigAssetBaseURL     = "https://cdn.commons.app"
	DefaultConfigPlatformTimeout  = 10 * time.Second
	DefaultConfigStorageBackend   = StorageBackendKeyring
	DefaultConfigVariant          = "prod"
	DefaultConfigWatchdogInterval = 5 * time.Second
)

// namespaceApp tags every durable key; combined with the build variant it
// keeps co-installed environments from colliding.
const namespaceApp = "commons"

// legacyAssetHosts are previous CDN hosts still present in old cached
// profiles; avatar references on them are rewritten to the current asset
// host on every profile store.
var legacyAssetHosts = []string{"static.commons.app", "img.commons-cdn.net"}

// PlatformConfig holds the remote platform endpoints.
type PlatformConfig struct {
	BaseURL      string        `json:"base_url" validate:"required,url"`
	AssetBaseURL string        `json:"asset_base_url" validate:"required,url"`
	Timeout      time.Duration `json:"timeout"`
}

// StorageConfig describes where credentials persist.
type StorageConfig struct {
	Backend StorageBackend `json:"backend" validate:"required,oneof=keyring file memory"`

	// Dir is the file-backend directory (ignored by other backends).
	Dir string `json:"dir,omitempty"`

	// Variant distinguishes co-installed build flavors (prod, staging, dev).
	Variant string `json:"variant" validate:"required,alphanum"`
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	// WatchdogInterval is how often credential presence is re-checked while
	// authenticated.
	WatchdogInterval time.Duration `json:"watchdog_interval"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	Platform  PlatformConfig `json:"platform"`
	Storage   StorageConfig  `json:"storage"`
	Session   SessionConfig  `json:"session"`
}

// Namespace returns the storage namespace for this configuration.
func (c *Config) Namespace() (credstore.Namespace, error) {
	return credstore.NewNamespace(namespaceApp, c.Storage.Variant)
}

// NewStore creates the configured credential store. Callers decide how to
// degrade when the confidential backend is unavailable.
func (s *StorageConfig) NewStore(ns credstore.Namespace) (credstore.Store, error) {
	switch s.Backend {
	case StorageBackendKeyring:
		return credstore.NewKeyringStore(ns.String())
	case StorageBackendFile:
		return credstore.NewFileStore(s.Dir)
	case StorageBackendMemory:
		return credstore.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", s.Backend)
	}
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = DefaultConfigPlatformBaseURL
	}
	if c.Platform.AssetBaseURL == "" {
		c.Platform.AssetBaseURL = DefaultConfigAssetBaseURL
	}
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = DefaultConfigPlatformTimeout
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultConfigStorageBackend
	}
	if c.Storage.Variant == "" {
		c.Storage.Variant = DefaultConfigVariant
	}
	if c.Session.WatchdogInterval == 0 {
		c.Session.WatchdogInterval = DefaultConfigWatchdogInterval
	}

	// Dynamic defaults based on storage backend
	if c.Storage.Backend == StorageBackendFile && c.Storage.Dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
		}
		c.Storage.Dir = filepath.Join(configDir, "commons", "credentials")
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Storage.Backend == StorageBackendFile && c.Storage.Dir == "" {
		return errors.New("dir required for file storage")
	}
	if c.Session.WatchdogInterval < time.Second {
		return errors.New("session.watchdog_interval must be at least 1s")
	}

	return nil
}
