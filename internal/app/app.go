package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/credkeeper/internal/credstore"
	"github.com/agentdeck/credkeeper/internal/profile"
	"github.com/agentdeck/credkeeper/internal/refresher"
	"github.com/agentdeck/credkeeper/internal/registry"
	"github.com/agentdeck/credkeeper/internal/rotation"
)

// UsageSource supplies current usage readings for OAuth accounts,
// as percentages of the session and weekly quotas.
type UsageSource interface {
	Usage(ctx context.Context, accountID string) (session, weekly float64)
}

// Option configures optional App collaborators.
type Option func(*App)

// WithUsageSource wires a usage reading provider into pool snapshots.
func WithUsageSource(src UsageSource) Option {
	return func(a *App) { a.usage = src }
}

// WithOracle wires a rate-limit oracle into account selection.
func WithOracle(oracle profile.Oracle) Option {
	return func(a *App) { a.oracle = oracle }
}

// App orchestrates the credential store, the refresher, the operation
// registry, and the account rotator.
type App struct {
	cfg       *Config
	store     *credstore.Store
	refresher *refresher.Refresher
	registry  *registry.Registry
	rotator   *rotation.Rotator

	usage  UsageSource
	oracle profile.Oracle
}

// New creates a new App instance.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := credstore.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	a := &App{
		cfg:       cfg,
		store:     store,
		refresher: refresher.New(store),
		registry:  registry.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	rot, err := rotation.New(rotation.Config{
		Pool:            rotation.PoolFunc(a.snapshotPool),
		Oracle:          a.oracle,
		Settings:        cfg.Threshold.Settings(),
		Priority:        cfg.Priority,
		Registry:        a.registry,
		Refresher:       a.refresher,
		InitialActiveID: cfg.Active,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rotator: %w", err)
	}
	a.rotator = rot

	return a, nil
}

// Store returns the credential store.
func (a *App) Store() *credstore.Store { return a.store }

// Refresher returns the token refresher.
func (a *App) Refresher() *refresher.Refresher { return a.refresher }

// Registry returns the operation registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Rotator returns the account rotator.
func (a *App) Rotator() *rotation.Rotator { return a.rotator }

// snapshotPool materializes the configured accounts with fresh
// credential state and usage readings.
func (a *App) snapshotPool(ctx context.Context) []profile.Account {
	pool := make([]profile.Account, 0, len(a.cfg.Accounts))
	for _, acc := range a.cfg.Accounts {
		switch acc.Type {
		case AccountTypeAPI:
			key := a.resolveAPIKey(acc)
			if key == "" {
				slog.WarnContext(ctx, "skipping API account without a key", "account", acc.ID)
				continue
			}
			pool = append(pool, &profile.APIProfile{
				ID:      acc.ID,
				Name:    acc.Name,
				APIKey:  key,
				BaseURL: acc.BaseURL,
			})
		case AccountTypeOAuth:
			p := &profile.OAuthProfile{
				ID:        acc.ID,
				Name:      acc.Name,
				ConfigDir: acc.ConfigDir,
			}
			creds := a.store.GetCredentials(ctx, credstore.Ref{
				ID: acc.ID, Name: acc.Name, ConfigDir: acc.ConfigDir,
			}, false)
			p.Authenticated = creds.Token != ""
			if a.usage != nil {
				p.SessionUsagePercent, p.WeeklyUsagePercent = a.usage.Usage(ctx, acc.ID)
			}
			pool = append(pool, p)
		}
	}
	return pool
}

func (a *App) resolveAPIKey(acc AccountConfig) string {
	if acc.APIKeyEnv != "" {
		return os.Getenv(acc.APIKeyEnv)
	}
	key, err := credstore.GetAPIKey(acc.ID)
	if err != nil {
		slog.Warn("failed to read API key from keyring", "account", acc.ID, "error", err)
		return ""
	}
	return key
}

// AccountStatus describes one pool entry for status reporting.
type AccountStatus struct {
	ID            string
	Name          string
	Type          AccountType
	Active        bool
	Authenticated bool
	TokenExpiry   time.Time
	Email         string
	Error         string
}

// Snapshot reports the current state of every configured account.
func (a *App) Snapshot(ctx context.Context) []AccountStatus {
	activeID := a.rotator.ActiveID()
	statuses := make([]AccountStatus, 0, len(a.cfg.Accounts))
	for _, acc := range a.cfg.Accounts {
		st := AccountStatus{
			ID:     acc.ID,
			Name:   acc.Name,
			Type:   acc.Type,
			Active: acc.ID == activeID,
		}
		switch acc.Type {
		case AccountTypeAPI:
			st.Authenticated = a.resolveAPIKey(acc) != ""
		case AccountTypeOAuth:
			full := a.store.GetFullCredentials(ctx, credstore.Ref{
				ID: acc.ID, Name: acc.Name, ConfigDir: acc.ConfigDir,
			}, false)
			st.Authenticated = full.Token != ""
			st.Email = full.Email
			st.Error = full.Err
			if full.ExpiresAt > 0 {
				st.TokenExpiry = time.UnixMilli(full.ExpiresAt)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Start runs the monitoring loops and blocks until the context is
// cancelled or a loop fails.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	slog.InfoContext(gCtx, "starting account monitor",
		"accounts", len(a.cfg.Accounts),
		"active", a.rotator.ActiveID(),
		"check_interval", a.cfg.Monitor.Interval,
		"refresh_interval", a.cfg.Monitor.RefreshInterval)

	g.Go(func() error { return a.monitorLoop(gCtx) })
	g.Go(func() error { return a.refreshLoop(gCtx) })

	runtimeErr := g.Wait()

	slog.Info("shutting down")
	a.store.ClearCache()

	if runtimeErr != nil && !errors.Is(runtimeErr, context.Canceled) {
		return runtimeErr
	}
	return nil
}

// monitorLoop periodically checks the active account and swaps it out
// when it crosses a threshold or hits a limit.
func (a *App) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Monitor.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := a.rotator.CheckAndSwap(ctx)
			if err != nil {
				// A failed swap leaves the old account active; the next
				// tick retries.
				slog.WarnContext(ctx, "account check failed", "error", err)
				continue
			}
			if result != nil {
				slog.InfoContext(ctx, "swapped active account",
					"from", result.FromID, "to", result.ToID,
					"migrated", result.Migrated, "reason", result.Reason)
			}
		}
	}
}

// refreshLoop keeps the active OAuth account's token fresh so swaps
// and operations never wait on a refresh round-trip.
func (a *App) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Monitor.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			acc := a.activeOAuthAccount()
			if acc == nil {
				continue
			}
			result := a.refresher.EnsureValidToken(ctx, credstore.Ref{
				ID: acc.ID, Name: acc.Name, ConfigDir: acc.ConfigDir,
			})
			if result.Err != "" {
				slog.WarnContext(ctx, "proactive token refresh failed",
					"account", acc.ID, "error", result.Err)
			} else if result.WasRefreshed {
				slog.InfoContext(ctx, "token refreshed proactively", "account", acc.ID)
			}
		}
	}
}

func (a *App) activeOAuthAccount() *AccountConfig {
	activeID := a.rotator.ActiveID()
	for i := range a.cfg.Accounts {
		if a.cfg.Accounts[i].ID == activeID && a.cfg.Accounts[i].Type == AccountTypeOAuth {
			return &a.cfg.Accounts[i]
		}
	}
	return nil
}
