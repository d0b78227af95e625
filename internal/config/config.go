// Package config loads remindd settings from defaults, an optional YAML
// file, a .env file and REMINDD_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	OwnerID   string          `koanf:"owner_id"`
	Timezone  string          `koanf:"timezone"`
	Database  DatabaseConfig  `koanf:"database"`
	Remote    RemoteConfig    `koanf:"remote"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	HTTP      HTTPConfig      `koanf:"http"`
	Notify    NotifyConfig    `koanf:"notify"`
	Log       LogConfig       `koanf:"log"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type RemoteConfig struct {
	Driver              string `koanf:"driver"`
	DSN                 string `koanf:"dsn"`
	PollIntervalSeconds int    `koanf:"poll_interval_seconds"`
	RetrySeconds        int    `koanf:"retry_seconds"`
}

type SchedulerConfig struct {
	HorizonDays          int `koanf:"horizon_days"`
	Buffer               int `koanf:"buffer"`
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`
}

type HTTPConfig struct {
	Addr        string   `koanf:"addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type NotifyConfig struct {
	Desktop  bool           `koanf:"desktop"`
	SendGrid SendGridConfig `koanf:"sendgrid"`
}

type SendGridConfig struct {
	APIKey    string `koanf:"api_key"`
	FromEmail string `koanf:"from_email"`
	FromName  string `koanf:"from_name"`
	ToEmail   string `koanf:"to_email"`
	ToName    string `koanf:"to_name"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Load builds the configuration. A missing file at configPath or a
// missing .env is not an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", configPath, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Database.Path = expandPath(cfg.Database.Path)
	return &cfg, nil
}

// envKey maps REMINDD_REMOTE__POLL_INTERVAL_SECONDS to
// remote.poll_interval_seconds.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("%w: remote.dsn is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown remote driver %q (supported: %s, %s)", ErrInvalidConfig, c.Remote.Driver, DriverMemory, DriverPostgres)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Remote.PollIntervalSeconds <= 0 || c.Remote.RetrySeconds <= 0 {
		return fmt.Errorf("%w: remote intervals must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.HorizonDays <= 0 {
		return fmt.Errorf("%w: scheduler.horizon_days must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.Buffer <= 0 {
		return fmt.Errorf("%w: scheduler.buffer must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("%w: scheduler.sweep_interval_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

// Location resolves Timezone; "" and "Local" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Remote.PollIntervalSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Remote.RetrySeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalSeconds) * time.Second
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
