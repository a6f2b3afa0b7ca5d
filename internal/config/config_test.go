package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func unsetenv(t *testing.T, key string) {
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BILLING_MCP_BASE_URL", "https://billing.example.com/api")
	t.Setenv("BILLING_MCP_TIMEOUT", "5s")
	t.Setenv("BILLING_MCP_STRICT_ERRORS", "true")

	cfg, err := Load(nil, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/api", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.StrictErrors)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("BILLING_MCP_BASE_URL", "https://env.example.com")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	AddHTTPFlags(fs)
	require.NoError(t, fs.Parse([]string{"--base-url", "https://flag.example.com", "--port", "8080", "--log-format", "json"}))

	cfg, err := Load(fs, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", cfg.BaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadDotEnv(t *testing.T) {
	unsetenv(t, "BILLING_MCP_TIMEOUT")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BILLING_MCP_TIMEOUT=2m\n"), 0o600))

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"relative url", func(c *Config) { c.BaseURL = "/api" }, "absolute http(s) URL"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://host/api" }, "absolute http(s) URL"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "must be positive"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "text or json"},
		{"half tls", func(c *Config) { c.TLSCert = "cert.pem" }, "set together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
	assert.NoError(t, Defaults().Validate())
}
