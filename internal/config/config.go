// Package config loads application configuration from a YAML file with
// environment variable overrides (SPOTFOUND_ prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Messaging MessagingConfig `koanf:"messaging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
}

// RedisConfig contains settings for the realtime pub/sub publisher.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SMTPConfig contains outbound email transport settings.
type SMTPConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	User        string `koanf:"user"`
	Password    string `koanf:"password"`
	FromAddress string `koanf:"from_address"`
}

// DispatchConfig contains notification dispatch pipeline settings.
type DispatchConfig struct {
	// Secret protects the internal processing trigger endpoints.
	Secret      string        `koanf:"secret"`
	BatchSize   int           `koanf:"batch_size"`
	MaxAttempts int           `koanf:"max_attempts"`
	PaceEvery   int           `koanf:"pace_every"`
	PaceDelay   time.Duration `koanf:"pace_delay"`
	BaseURL     string        `koanf:"base_url"`
	AdminEmail  string        `koanf:"admin_email"`
}

// MessagingConfig contains thread subsystem settings.
type MessagingConfig struct {
	PreviewLength  int `koanf:"preview_length"`
	PageSize       int `koanf:"page_size"`
	MaxAttachments int `koanf:"max_attachments"`
}

// Load reads configuration from the given YAML file (optional) and
// environment variables. Env vars use the SPOTFOUND_ prefix with underscores
// mapping to nesting, e.g. SPOTFOUND_DATABASE__URL -> database.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "SPOTFOUND_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, "SPOTFOUND_")
			key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Dispatch: DispatchConfig{
			BatchSize:   50,
			MaxAttempts: 3,
			PaceEvery:   10,
			PaceDelay:   time.Second,
		},
		Messaging: MessagingConfig{
			PreviewLength:  100,
			PageSize:       50,
			MaxAttachments: 5,
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Dispatch.Secret == "" {
		return fmt.Errorf("dispatch.secret is required")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.max_attempts must be positive")
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required when smtp is enabled")
	}
	if c.SMTP.Enabled && c.SMTP.FromAddress == "" {
		return fmt.Errorf("smtp.from_address is required when smtp is enabled")
	}
	return nil
}
