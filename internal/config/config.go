// Package config provides Viper-based configuration management for cpctl
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the hosted CareerPilot API.
const DefaultBaseURL = "https://careerpilot-api.onrender.com"

// Config represents the complete cpctl configuration
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Stub      StubConfig      `mapstructure:"stub"`
}

// APIConfig contains the API endpoint settings
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// AuthConfig selects how a rejected session is recovered
type AuthConfig struct {
	Renewal     string `mapstructure:"renewal"`
	RefreshPath string `mapstructure:"refresh_path"`
}

// StoreConfig contains credential persistence settings
type StoreConfig struct {
	Path    string `mapstructure:"path"`
	Persist bool   `mapstructure:"persist"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// TelemetryConfig contains trace export settings
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// StubConfig contains settings for the local stub backend
type StubConfig struct {
	Addr          string `mapstructure:"addr"`
	Secret        string `mapstructure:"secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".cpctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cpctl")
	}

	// CPCTL_API_BASE_URL overrides api.base_url
	v.SetEnvPrefix("CPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.burst", 5)

	v.SetDefault("auth.renewal", "none")
	v.SetDefault("auth.refresh_path", "/api/auth/refresh")

	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.persist", true)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	v.SetDefault("output.colors", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("stub.addr", "127.0.0.1:8787")
	v.SetDefault("stub.secret", "cpstub-dev-secret")
	v.SetDefault("stub.secure_cookies", false)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cpctl-credentials.env"
	}
	return filepath.Join(home, ".config", "cpctl", "credentials.env")
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base_url: %q (must be an http or https URL)", cfg.API.BaseURL)
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("invalid api timeout: %s (must be positive)", cfg.API.Timeout)
	}
	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("invalid api rate_limit: %v (must not be negative)", cfg.API.RateLimit)
	}

	validRenewals := map[string]bool{"none": true, "endpoint": true}
	if !validRenewals[cfg.Auth.Renewal] {
		return fmt.Errorf("invalid auth renewal: %s (must be none or endpoint)", cfg.Auth.Renewal)
	}
	if !strings.HasPrefix(cfg.Auth.RefreshPath, "/") {
		return fmt.Errorf("invalid auth refresh_path: %s (must start with /)", cfg.Auth.RefreshPath)
	}

	if cfg.Store.Persist && cfg.Store.Path == "" {
		return errors.New("store path is required when persistence is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", cfg.Logging.Format)
	}

	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("invalid telemetry sample_ratio: %v (must be between 0 and 1)", cfg.Telemetry.SampleRatio)
	}

	return nil
}
