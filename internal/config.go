package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Accrual AccrualConfig     `yaml:"accrual"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Accrual.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel string     `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Level returns the configured slog level. Call Validate first.
func (c *ApplicationConfig) Level() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLogLevel maps a level name onto a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AccrualConfig drives the background accrual scheduler.
//
// Interval is a Go duration string ("1h", "30m"). MaturityWindowDays is the
// horizon for maturity advisories on the event stream.
type AccrualConfig struct {
	Interval           string `yaml:"interval"`
	MaturityWindowDays int    `yaml:"maturity_window_days"`
}

// Validate validates the accrual configuration.
func (c *AccrualConfig) Validate() error {
	if c.Interval == "" {
		c.Interval = "1h"
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("accrual: invalid interval %q: %w", c.Interval, err)
	}
	if d <= 0 {
		return fmt.Errorf("accrual: interval must be positive, got %q", c.Interval)
	}
	if c.MaturityWindowDays < 0 {
		return fmt.Errorf("accrual: maturity window must not be negative")
	}
	return nil
}

// TickInterval returns the parsed scheduler interval. Call Validate first.
func (c *AccrualConfig) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return time.Hour
	}
	return d
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: "info",
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./noteledger.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Accrual: AccrualConfig{
			Interval:           "1h",
			MaturityWindowDays: 30,
		},
	}
}
