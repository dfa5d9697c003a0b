package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, StorageBackendKeyring, cfg.Storage.Backend)
	assert.Equal(t, "prod", cfg.Storage.Variant)
	assert.Equal(t, 10*time.Second, cfg.Platform.Timeout)
}

func TestApplyDefaultsFileBackendDir(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: StorageBackendFile}}
	require.NoError(t, cfg.ApplyDefaults())
	assert.NotEmpty(t, cfg.Storage.Dir)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad backend", func(c *Config) { c.Storage.Backend = "vault" }},
		{"bad base url", func(c *Config) { c.Platform.BaseURL = "not a url" }},
		{"empty variant", func(c *Config) { c.Storage.Variant = "" }},
		{"watchdog too fast", func(c *Config) { c.Session.WatchdogInterval = 10 * time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNamespaceUsesVariant(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Storage.Variant = "staging"

	ns, err := cfg.Namespace()
	require.NoError(t, err)
	assert.Equal(t, "commons.staging", ns.String())
}

func TestAssetResolver(t *testing.T) {
	resolve, err := newAssetResolver("https://cdn.commons.app")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative path", "/avatars/u1.png", "https://cdn.commons.app/avatars/u1.png"},
		{"legacy host", "https://static.commons.app/avatars/u1.png", "https://cdn.commons.app/avatars/u1.png"},
		{"legacy host http", "http://img.commons-cdn.net/a.png", "https://cdn.commons.app/a.png"},
		{"current host untouched", "https://cdn.commons.app/a.png", "https://cdn.commons.app/a.png"},
		{"foreign host untouched", "https://gravatar.com/a.png", "https://gravatar.com/a.png"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.in))
		})
	}
}
