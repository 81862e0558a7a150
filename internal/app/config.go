package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agentdeck/credkeeper/internal/profile"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// AccountType represents the two supported account variants.
type AccountType string

const (
	AccountTypeOAuth AccountType = "oauth"
	AccountTypeAPI   AccountType = "api"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigMonitorInterval  = 30 * time.Second
	DefaultConfigRefreshInterval  = 5 * time.Minute
	DefaultConfigSessionThreshold = 95.0
	DefaultConfigWeeklyThreshold  = 90.0
	DefaultConfigAPIBaseURL       = "https://api.anthropic.com"
)

// AccountConfig declares one account in the pool.
type AccountConfig struct {
	ID   string      `json:"id" validate:"required"`
	Name string      `json:"name"`
	Type AccountType `json:"type" validate:"required,oneof=oauth api"`

	// ConfigDir is the profile directory for OAuth accounts. Empty
	// means the default profile directory.
	ConfigDir string `json:"config_dir,omitempty"`

	// APIKeyEnv names an environment variable holding the key for API
	// accounts; when empty the key is read from the OS keyring.
	APIKeyEnv string `json:"api_key_env,omitempty"`
	BaseURL   string `json:"base_url,omitempty" validate:"omitempty,url"`
}

// MonitorConfig holds the daemon's loop intervals.
type MonitorConfig struct {
	// Interval between availability checks of the active account.
	Interval time.Duration `json:"interval"`
	// RefreshInterval between proactive token validity checks.
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// ThresholdConfig holds the usage thresholds that drive proactive
// account swaps.
type ThresholdConfig struct {
	SessionPercent float64 `json:"session_percent" validate:"gte=0,lte=100"`
	WeeklyPercent  float64 `json:"weekly_percent" validate:"gte=0,lte=100"`
	Enabled        bool    `json:"enabled"`
}

// Settings converts the config form into scorer settings.
func (t ThresholdConfig) Settings() profile.Settings {
	return profile.Settings{
		SessionThreshold: t.SessionPercent,
		WeeklyThreshold:  t.WeeklyPercent,
		Enabled:          t.Enabled,
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Monitor   MonitorConfig   `json:"monitor"`
	Threshold ThresholdConfig `json:"threshold"`
	Accounts  []AccountConfig `json:"accounts" validate:"dive"`

	// Priority lists account ids in preference order; accounts not
	// listed sort after every listed one.
	Priority []string `json:"priority"`

	// Active selects the starting account id. Empty defaults to the
	// first configured account.
	Active string `json:"active"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{Threshold: ThresholdConfig{Enabled: true}}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with their defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultConfigMonitorInterval
	}
	if c.Monitor.RefreshInterval == 0 {
		c.Monitor.RefreshInterval = DefaultConfigRefreshInterval
	}
	if c.Threshold.SessionPercent == 0 {
		c.Threshold.SessionPercent = DefaultConfigSessionThreshold
	}
	if c.Threshold.WeeklyPercent == 0 {
		c.Threshold.WeeklyPercent = DefaultConfigWeeklyThreshold
	}

	for i := range c.Accounts {
		if c.Accounts[i].Name == "" {
			c.Accounts[i].Name = c.Accounts[i].ID
		}
		if c.Accounts[i].Type == AccountTypeAPI && c.Accounts[i].BaseURL == "" {
			c.Accounts[i].BaseURL = DefaultConfigAPIBaseURL
		}
	}
	if c.Active == "" && len(c.Accounts) > 0 {
		c.Active = c.Accounts[0].ID
	}

	return nil
}

// Validate validates the configuration, covering the cross-field rules
// the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if seen[acc.ID] {
			return fmt.Errorf("duplicate account id %q", acc.ID)
		}
		seen[acc.ID] = true

		if acc.Type == AccountTypeOAuth && (acc.APIKeyEnv != "" || acc.BaseURL != "") {
			return fmt.Errorf("account %q: oauth accounts take no API key settings", acc.ID)
		}
	}

	if c.Active != "" && len(c.Accounts) > 0 && !seen[c.Active] {
		return fmt.Errorf("active account %q is not in the pool", c.Active)
	}
	for _, id := range c.Priority {
		if !seen[id] {
			return fmt.Errorf("priority entry %q is not in the pool", id)
		}
	}

	return nil
}
