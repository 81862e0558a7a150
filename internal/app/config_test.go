package app

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Accounts: []AccountConfig{
			{ID: "work", Type: AccountTypeOAuth},
			{ID: "backup", Type: AccountTypeAPI, APIKeyEnv: "BACKUP_KEY"},
		},
	}
	cfg.Threshold.Enabled = true
	if err := cfg.ApplyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.Monitor.Interval != DefaultConfigMonitorInterval {
		t.Errorf("Monitor.Interval = %v", cfg.Monitor.Interval)
	}
	if cfg.Threshold.SessionPercent != DefaultConfigSessionThreshold {
		t.Errorf("SessionPercent = %v", cfg.Threshold.SessionPercent)
	}
	if cfg.Accounts[0].Name != "work" {
		t.Errorf("account name not defaulted from id: %q", cfg.Accounts[0].Name)
	}
	if cfg.Active != "work" {
		t.Errorf("Active = %q, want first account", cfg.Active)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name: "duplicate account id",
			mutate: func(c *Config) {
				c.Accounts = append(c.Accounts, AccountConfig{ID: "work", Type: AccountTypeOAuth, Name: "work"})
			},
			wantErr: "duplicate account id",
		},
		{
			name: "oauth account with api key settings",
			mutate: func(c *Config) {
				c.Accounts[0].APIKeyEnv = "SOME_KEY"
			},
			wantErr: "no API key settings",
		},
		{
			name: "active account not in pool",
			mutate: func(c *Config) {
				c.Active = "ghost"
			},
			wantErr: "not in the pool",
		},
		{
			name: "priority entry not in pool",
			mutate: func(c *Config) {
				c.Priority = []string{"ghost"}
			},
			wantErr: "not in the pool",
		},
		{
			name: "bad account type",
			mutate: func(c *Config) {
				c.Accounts[0].Type = "token"
			},
			wantErr: "validation failed",
		},
		{
			name: "threshold over 100",
			mutate: func(c *Config) {
				c.Threshold.SessionPercent = 120
			},
			wantErr: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
