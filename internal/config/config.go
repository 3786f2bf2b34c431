// Package config loads the turnover configuration from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/u4s/turnover-cli/internal/core"
)

// ErrNoAPIBase is returned when no API base URL is configured.
var ErrNoAPIBase = errors.New("API base URL is not configured")

type Config struct {
	API       APIConfig       `toml:"api" envconfig:"API"`
	Dashboard DashboardConfig `toml:"dashboard" envconfig:"DASHBOARD"`
	Cache     CacheConfig     `toml:"cache" envconfig:"CACHE"`
	Session   SessionConfig   `toml:"session" envconfig:"SESSION"`
	Log       LogConfig       `toml:"log" envconfig:"LOG"`
}

type APIConfig struct {
	BaseURL string        `toml:"base_url" split_words:"true" validate:"required,url"`
	Timeout time.Duration `toml:"timeout" split_words:"true" validate:"min=0"`
}

type DashboardConfig struct {
	DateField string        `toml:"date_field" split_words:"true" validate:"oneof=created checkin"`
	Locale    string        `toml:"locale" split_words:"true" validate:"oneof=ru en"`
	Debounce  time.Duration `toml:"debounce" split_words:"true" validate:"min=0"`
	Timezone  string        `toml:"timezone" split_words:"true"`
}

type CacheConfig struct {
	Backend     string        `toml:"backend" split_words:"true" validate:"oneof=memory redis"`
	TTL         time.Duration `toml:"ttl" split_words:"true" validate:"gt=0"`
	MaxEntries  int           `toml:"max_entries" split_words:"true" validate:"min=1"`
	RedisAddr   string        `toml:"redis_addr" split_words:"true" validate:"required_if=Backend redis"`
	RedisPrefix string        `toml:"redis_prefix" split_words:"true"`
}

type SessionConfig struct {
	Path string `toml:"path" split_words:"true"`
}

type LogConfig struct {
	Format  string `toml:"format" split_words:"true" validate:"oneof=text json"`
	Verbose bool   `toml:"verbose" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: core.DefaultAPIBase,
			Timeout: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			DateField: core.DateFieldCreated,
			Locale:    "ru",
			Debounce:  core.FetchDebounce,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			TTL:         core.RequestCacheTTL,
			MaxEntries:  core.RequestCacheMaxEntries,
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "turnover:cache",
		},
		Session: SessionConfig{
			Path: core.SessionPath(),
		},
		Log: LogConfig{
			Format: "text",
		},
	}
}

func DefaultPath() string {
	return filepath.Join(core.ConfigRoot(), "config.toml")
}

// Load reads path over the defaults, applies TURNOVER_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(core.EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.Dashboard.DateField = strings.TrimSpace(c.Dashboard.DateField)
	if c.Session.Path == "" {
		c.Session.Path = core.SessionPath()
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrNoAPIBase
	}
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func Save(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
