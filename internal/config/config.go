package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/emailflow/internal/ipfilter"
)

// Config is the main configuration structure
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Relay         RelayConfig         `yaml:"relay"`
	Composer      ComposerConfig      `yaml:"composer"`
	Draft         DraftConfig         `yaml:"draft"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr" env:"EMAILFLOW_LISTEN_ADDR"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 60s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access the API (empty = allow all)
}

// BackendConfig points at the workflow service that delivers mail
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"EMAILFLOW_BACKEND_BASE_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// RelayConfig contains client settings for the intermediary endpoint
type RelayConfig struct {
	// Endpoint defaults to this server's own /api/send-email
	Endpoint string        `yaml:"endpoint" env:"EMAILFLOW_RELAY_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ComposerConfig holds the values stamped on every submission
type ComposerConfig struct {
	Sender       string `yaml:"sender" env:"EMAILFLOW_SENDER"`
	WebsiteURL   string `yaml:"website_url" env:"EMAILFLOW_WEBSITE_URL"`
	Environment  string `yaml:"environment" env:"EMAILFLOW_ENVIRONMENT"`
	ReferralPath string `yaml:"referral_path"`
}

// DraftConfig contains draft persistence settings
type DraftConfig struct {
	Path string `yaml:"path" env:"EMAILFLOW_DRAFT_PATH"`
	Key  string `yaml:"key"`
}

// NotificationsConfig contains notification queue settings
type NotificationsConfig struct {
	DefaultLifetime time.Duration `yaml:"default_lifetime"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"EMAILFLOW_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"EMAILFLOW_LOG_FORMAT"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path skips the file.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	// The .env file is optional
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a validated configuration built from defaults only
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}

	if c.Relay.Endpoint == "" {
		c.Relay.Endpoint = localEndpoint(c.Server.ListenAddr) + "/api/send-email"
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = 30 * time.Second
	}

	if c.Composer.Sender == "" {
		c.Composer.Sender = "Medbuddy <info@medbuddyafrica.com>"
	}
	if c.Composer.WebsiteURL == "" {
		c.Composer.WebsiteURL = "https://medbuddyafrica.com"
	}
	if c.Composer.Environment == "" {
		c.Composer.Environment = "staging"
	}
	if c.Composer.ReferralPath == "" {
		c.Composer.ReferralPath = "/app/referrals"
	}

	if c.Draft.Path == "" {
		c.Draft.Path = "emailflow.db"
	}
	if c.Draft.Key == "" {
		c.Draft.Key = "emailflow-draft"
	}

	if c.Notifications.DefaultLifetime == 0 {
		c.Notifications.DefaultLifetime = 4500 * time.Millisecond
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateHTTPURL("backend.base_url", c.Backend.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("relay.endpoint", c.Relay.Endpoint); err != nil {
		return err
	}
	if err := validateHTTPURL("composer.website_url", c.Composer.WebsiteURL); err != nil {
		return err
	}

	if strings.TrimSpace(c.Composer.Sender) == "" {
		return errors.New("composer.sender is required")
	}
	if strings.TrimSpace(c.Composer.Environment) == "" {
		return errors.New("composer.environment is required")
	}
	if !strings.HasPrefix(c.Composer.ReferralPath, "/") {
		return fmt.Errorf("composer.referral_path must start with /: %s", c.Composer.ReferralPath)
	}

	if c.Backend.Timeout < 0 || c.Relay.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Notifications.DefaultLifetime <= 0 {
		return errors.New("notifications.default_lifetime must be positive")
	}

	if err := ipfilter.Validate(c.Server.AllowedIPs); err != nil {
		return fmt.Errorf("invalid server.allowed_ips: %w", err)
	}
	if err := ipfilter.Validate(c.Metrics.AllowedIPs); err != nil {
		return fmt.Errorf("invalid metrics.allowed_ips: %w", err)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: %s (must be an absolute http or https URL)", name, raw)
	}
	return nil
}

// localEndpoint returns the base URL a local client uses to reach addr
func localEndpoint(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
