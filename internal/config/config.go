package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig tunes the in-progress session engine. Durations are
// given in milliseconds in the YAML file.
type SessionConfig struct {
	DebounceMs     int    `yaml:"debounce_ms"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	InitTimeoutMs  int    `yaml:"init_timeout_ms"`
	MinDirty       int    `yaml:"min_dirty"`
	TimerStateDir  string `yaml:"timer_state_dir"`
}

// Debounce returns the autosave quiet period.
func (s SessionConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// RetryBackoff returns the delay between automatic save retries.
func (s SessionConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMs) * time.Millisecond
}

// InitTimeout returns the initialization safety timeout.
func (s SessionConfig) InitTimeout() time.Duration {
	return time.Duration(s.InitTimeoutMs) * time.Millisecond
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable
// overrides. Env vars use the prefix SESSIOND_ and underscore-separated
// paths:
//
//	SESSIOND_SERVER_HOST, SESSIOND_SERVER_PORT,
//	SESSIOND_DB_HOST, SESSIOND_DB_PORT, SESSIOND_DB_NAME,
//	SESSIOND_DB_USER, SESSIOND_DB_PASSWORD, SESSIOND_DB_SSLMODE,
//	SESSIOND_AUTH_API_KEY, SESSIOND_TIMER_STATE_DIR
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SESSIOND_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SESSIOND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SESSIOND_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SESSIOND_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SESSIOND_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SESSIOND_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SESSIOND_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SESSIOND_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("SESSIOND_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("SESSIOND_TIMER_STATE_DIR"); v != "" {
		cfg.Session.TimerStateDir = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Session.DebounceMs < 0 || c.Session.RetryBackoffMs < 0 || c.Session.InitTimeoutMs < 0 {
		return fmt.Errorf("session durations must not be negative")
	}
	return nil
}
