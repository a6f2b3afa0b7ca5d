// Package config loads the adapter configuration from flags, environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BILLING_MCP_BASE_URL.
const EnvPrefix = "BILLING_MCP"

// Keys shared by flags, env and viper.
const (
	KeyBaseURL      = "base_url"
	KeyTimeout      = "timeout"
	KeyStrictErrors = "strict_errors"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyPort         = "port"
	KeyToken        = "token"
	KeyTLSCert      = "tls_cert"
	KeyTLSKey       = "tls_key"
)

// Config contains every setting the adapter reads at startup.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	StrictErrors bool          `mapstructure:"strict_errors"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`

	// HTTP transport only.
	Port    string `mapstructure:"port"`
	Token   string `mapstructure:"token"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		BaseURL:   "http://localhost:8000/api",
		Timeout:   30 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
		Port:      "3000",
	}
}

// AddFlags registers the flags shared by every command.
func AddFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(flagName(KeyBaseURL), d.BaseURL, "base URL of the billing API")
	flags.Duration(flagName(KeyTimeout), d.Timeout, "timeout for a single upstream request")
	flags.Bool(flagName(KeyStrictErrors), d.StrictErrors, "report upstream HTTP and network failures as tool errors")
	flags.String(flagName(KeyLogLevel), d.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String(flagName(KeyLogFormat), d.LogFormat, "log format (text or json)")
}

// AddHTTPFlags registers the flags of the HTTP transport.
func AddHTTPFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(flagName(KeyPort), d.Port, "port to listen on")
	flags.String(flagName(KeyToken), "", "bearer token required on /mcp routes; empty leaves them open")
	flags.String(flagName(KeyTLSCert), "", "TLS certificate file")
	flags.String(flagName(KeyTLSKey), "", "TLS key file")
}

// Load reads configuration with precedence flags > environment > .env > defaults.
// A missing .env file is not an error.
func Load(flags *pflag.FlagSet, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyBaseURL, d.BaseURL)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyStrictErrors, d.StrictErrors)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyTLSCert, "")
	v.SetDefault(KeyTLSKey, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail on the first tool call.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q: must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.LogFormat)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	return nil
}

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
