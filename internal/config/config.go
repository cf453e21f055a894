// Package config loads the YAML configuration shared by the CLI and the proxy.
// The bearer token is never part of the file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/client"
	"github.com/Sternrassler/salesys-blacklist/pkg/export"
	"github.com/Sternrassler/salesys-blacklist/pkg/logging"
	"github.com/Sternrassler/salesys-blacklist/pkg/pagination"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvToken      = "SALESYS_TOKEN"
	EnvBaseURL    = "SALESYS_BASE_URL"
	EnvProxyURL   = "SALESYS_PROXY_URL"
	EnvDirect     = "SALESYS_DIRECT"
	EnvExportDir  = "SALESYS_EXPORT_DIR"
	EnvLogLevel   = "SALESYS_LOG_LEVEL"
	EnvListenAddr = "SALESYS_LISTEN_ADDR"
	EnvRedisAddr  = "SALESYS_REDIS_ADDR"
)

// Config is the root configuration.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Pagination PaginationConfig `yaml:"pagination"`
	Export     ExportConfig     `yaml:"export"`
	Logging    LoggingConfig    `yaml:"logging"`
	Proxy      ProxyConfig      `yaml:"proxy"`
}

// APIConfig describes the upstream exclude-lists API.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	ProxyURL string        `yaml:"proxy_url"`
	Direct   bool          `yaml:"direct"` // skip the forwarding proxy
	Timeout  time.Duration `yaml:"timeout"`
}

// PaginationConfig contains page and batch sizes.
type PaginationConfig struct {
	PageSize   int           `yaml:"page_size"`
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// ExportConfig controls where and how exports are written.
type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // xlsx, csv
	Prefix string `yaml:"prefix"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
}

// ProxyConfig configures the forwarding proxy server.
type ProxyConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	AllowedHosts []string      `yaml:"allowed_hosts"`
	RedisAddr    string        `yaml:"redis_addr"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Load loads configuration from a YAML file. An empty path yields the
// defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
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

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv(EnvBaseURL, c.API.BaseURL)
	c.API.ProxyURL = getEnv(EnvProxyURL, c.API.ProxyURL)
	c.API.Direct = getEnvBool(EnvDirect, c.API.Direct)
	c.Export.Dir = getEnv(EnvExportDir, c.Export.Dir)
	c.Logging.Level = getEnv(EnvLogLevel, c.Logging.Level)
	c.Proxy.ListenAddr = getEnv(EnvListenAddr, c.Proxy.ListenAddr)
	c.Proxy.RedisAddr = getEnv(EnvRedisAddr, c.Proxy.RedisAddr)
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = client.DefaultBaseURL
	}
	if c.API.ProxyURL == "" && !c.API.Direct {
		c.API.ProxyURL = client.DefaultProxyURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}

	def := pagination.DefaultConfig()
	if c.Pagination.PageSize == 0 {
		c.Pagination.PageSize = def.PageSize
	}
	if c.Pagination.BatchSize == 0 {
		c.Pagination.BatchSize = def.BatchSize
	}
	if c.Pagination.BatchDelay == 0 {
		c.Pagination.BatchDelay = def.BatchDelay
	}

	if c.Export.Dir == "" {
		c.Export.Dir = "."
	}
	if c.Export.Format == "" {
		c.Export.Format = string(export.FormatXLSX)
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = export.DefaultPrefix
	}

	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LevelInfo)
	}

	if c.Proxy.ListenAddr == "" {
		c.Proxy.ListenAddr = ":8080"
	}
	if len(c.Proxy.AllowedHosts) == 0 {
		c.Proxy.AllowedHosts = []string{"app.salesys.se"}
	}
	if c.Proxy.Timeout == 0 {
		c.Proxy.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if !c.API.Direct {
		if err := validateURL("api.proxy_url", c.API.ProxyURL); err != nil {
			return err
		}
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	if c.Pagination.PageSize < 1 {
		return fmt.Errorf("pagination.page_size must be positive, got %d", c.Pagination.PageSize)
	}
	if c.Pagination.BatchSize < 1 {
		return fmt.Errorf("pagination.batch_size must be positive, got %d", c.Pagination.BatchSize)
	}
	if c.Pagination.BatchDelay < 0 {
		return fmt.Errorf("pagination.batch_delay must not be negative")
	}

	if _, err := export.NewSerializer(export.Format(c.Export.Format)); err != nil {
		return fmt.Errorf("invalid export.format: %s (must be xlsx or csv)", c.Export.Format)
	}

	if err := logging.ValidateLevel(logging.LogLevel(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	for _, host := range c.Proxy.AllowedHosts {
		if host == "" || strings.ContainsAny(host, "/:") {
			return fmt.Errorf("invalid proxy.allowed_hosts entry %q (must be a bare host name)", host)
		}
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid %s: %q", field, raw)
	}
	return nil
}

// ClientConfig builds the API client configuration for token.
func (c *Config) ClientConfig(token string) client.Config {
	cfg := client.DefaultConfig(token)
	cfg.BaseURL = c.API.BaseURL
	cfg.ProxyURL = c.API.ProxyURL
	if c.API.Direct {
		cfg.ProxyURL = ""
	}
	cfg.Timeout = c.API.Timeout
	return cfg
}

// PaginationConfig converts to pagination.Config. The per-page deadline
// follows the API timeout.
func (c *Config) PaginationConfig() pagination.Config {
	return pagination.Config{
		PageSize:   c.Pagination.PageSize,
		BatchSize:  c.Pagination.BatchSize,
		BatchDelay: c.Pagination.BatchDelay,
		Timeout:    c.API.Timeout,
	}
}

// ExportConfig converts to export.Config.
func (c *Config) ExportConfig() export.Config {
	return export.Config{Dir: c.Export.Dir, Prefix: c.Export.Prefix}
}

// LoggingConfig converts to logging.Config writing to stderr.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// Token reads the bearer token from the environment.
func Token() string {
	return strings.TrimSpace(os.Getenv(EnvToken))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
