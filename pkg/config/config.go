// Package config loads the catalog service configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UpstreamConfig contains spot price provider settings.
type UpstreamConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	AccessToken string   `yaml:"access_token"`
	Fields      []string `yaml:"fields"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
}

// OracleConfig contains price cache settings.
type OracleConfig struct {
	TTL          Duration `yaml:"ttl"`
	BackupAmount float64  `yaml:"backup_amount"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// CatalogConfig contains catalog storage settings.
type CatalogConfig struct {
	ProductsFile string `yaml:"products_file"`
}

// RedisConfig contains the optional quote store settings.
type RedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Key      string   `yaml:"key"`
	TTL      Duration `yaml:"ttl"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         5000,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Upstream: UpstreamConfig{
			Endpoints:   []string{"https://www.goldapi.io/api/XAU/USD"},
			Fields:      []string{"price_gram_24k", "price_gram_22k"},
			Timeout:     Duration(5 * time.Second),
			MaxAttempts: 1,
			Backoff:     Duration(500 * time.Millisecond),
		},
		Oracle: OracleConfig{
			TTL:          Duration(15 * time.Minute),
			BackupAmount: 65.0,
			FetchTimeout: Duration(10 * time.Second),
		},
		Catalog: CatalogConfig{
			ProductsFile: "products.json",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "gold:spot:last",
			TTL:  Duration(24 * time.Hour),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file over the defaults. A missing file
// is not an error; environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GOLDAPI_KEY"); v != "" {
		c.Upstream.AccessToken = v
	}
	if v := os.Getenv("CATALOG_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CATALOG_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CATALOG_PRODUCTS_FILE"); v != "" {
		c.Catalog.ProductsFile = v
	}
	if v := os.Getenv("CATALOG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CATALOG_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CATALOG_UPSTREAM_ENDPOINTS"); v != "" {
		c.Upstream.Endpoints = strings.Split(v, ",")
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Upstream.Endpoints) == 0 {
		return fmt.Errorf("upstream.endpoints is required")
	}
	if len(c.Upstream.Fields) == 0 {
		return fmt.Errorf("upstream.fields is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream.max_attempts must be at least 1")
	}
	if c.Oracle.TTL <= 0 {
		return fmt.Errorf("oracle.ttl must be positive")
	}
	if c.Oracle.BackupAmount <= 0 {
		return fmt.Errorf("oracle.backup_amount must be positive")
	}
	if c.Catalog.ProductsFile == "" {
		return fmt.Errorf("catalog.products_file is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// Duration wraps time.Duration so it can be written as "15m" in YAML or JSON.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts both "5m" and a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
