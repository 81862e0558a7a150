// Package rotation coordinates account swaps: when the active account
// is exhausted or rate-limited, it picks a replacement, guarantees the
// replacement's token is valid, and migrates in-flight operations.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentdeck/credkeeper/internal/credstore"
	"github.com/agentdeck/credkeeper/internal/profile"
	"github.com/agentdeck/credkeeper/internal/refresher"
	"github.com/agentdeck/credkeeper/internal/registry"
)

// PoolSource supplies the current account pool snapshot. Callers fold
// in fresh usage readings before each snapshot.
type PoolSource interface {
	Accounts(ctx context.Context) []profile.Account
}

// PoolFunc adapts a function to the PoolSource interface.
type PoolFunc func(ctx context.Context) []profile.Account

// Compile-time check to ensure PoolFunc implements PoolSource
var _ PoolSource = (PoolFunc)(nil)

func (f PoolFunc) Accounts(ctx context.Context) []profile.Account { return f(ctx) }

// SwapResult reports one completed account swap.
type SwapResult struct {
	FromID   string
	ToID     string
	ToName   string
	Migrated int
	Reason   string
}

// Config wires a Rotator's collaborators.
type Config struct {
	Pool      PoolSource
	Oracle    profile.Oracle
	Settings  profile.Settings
	Priority  []string
	Registry  *registry.Registry
	Refresher *refresher.Refresher

	// InitialActiveID selects the starting account. Empty lets the
	// first swap (or SetActive) establish one.
	InitialActiveID string
}

// Rotator owns the "currently chosen account" and the swap flow.
type Rotator struct {
	pool      PoolSource
	oracle    profile.Oracle
	settings  profile.Settings
	priority  []string
	registry  *registry.Registry
	refresher *refresher.Refresher

	mu       sync.Mutex
	activeID string
}

// New creates a Rotator.
func New(cfg Config) (*Rotator, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("missing account pool source")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("missing operation registry")
	}
	if cfg.Refresher == nil {
		return nil, fmt.Errorf("missing token refresher")
	}

	return &Rotator{
		pool:      cfg.Pool,
		oracle:    cfg.Oracle,
		settings:  cfg.Settings,
		priority:  cfg.Priority,
		registry:  cfg.Registry,
		refresher: cfg.Refresher,
		activeID:  cfg.InitialActiveID,
	}, nil
}

// ActiveID returns the currently chosen account id.
func (r *Rotator) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// SetActive records a new active account without migrating anything.
func (r *Rotator) SetActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeID = id
}

// CheckAndSwap swaps only when the active account is no longer
// available under the thresholds. Returns nil when no swap was needed.
func (r *Rotator) CheckAndSwap(ctx context.Context) (*SwapResult, error) {
	if !r.settings.Enabled {
		return nil, nil
	}

	activeID := r.ActiveID()
	if activeID == "" {
		return nil, nil
	}

	pool := r.pool.Accounts(ctx)
	active := findAccount(pool, activeID)
	if active == nil {
		return r.SwapActive(ctx, "active account missing from pool")
	}

	var rl profile.RateLimitStatus
	if r.oracle != nil {
		rl = r.oracle.Status(activeID)
	}
	if u := profile.Normalize(active, r.settings, rl); u.Available {
		return nil, nil
	}

	reason := "usage threshold reached"
	if rl.Limited {
		reason = fmt.Sprintf("rate limited (%s)", rl.Kind)
	}
	return r.SwapActive(ctx, reason)
}

// SwapActive selects the next-best account, guarantees its token, and
// migrates every operation bound to the old account onto it.
func (r *Rotator) SwapActive(ctx context.Context, reason string) (*SwapResult, error) {
	oldID := r.ActiveID()
	pool := r.pool.Accounts(ctx)

	next := profile.SelectBestAccount(pool, r.settings, r.oracle, oldID, r.priority)
	if next == nil {
		return nil, fmt.Errorf("no usable replacement account")
	}

	// The migrated operations' restart paths re-validate tokens
	// themselves; validating here fails the swap early instead of
	// failing every operation one by one.
	if oauth, ok := next.(*profile.OAuthProfile); ok {
		result := r.refresher.EnsureValidToken(ctx, credstore.Ref{
			ID:        oauth.ID,
			Name:      oauth.Name,
			ConfigDir: oauth.ConfigDir,
		})
		if result.Token == "" {
			return nil, fmt.Errorf("replacement account %s has no valid token: %s", oauth.ID, result.Err)
		}
		if result.Err != "" {
			slog.WarnContext(ctx, "proceeding with degraded token on replacement account",
				"account", oauth.ID, "error", result.Err)
		}
	}

	migrated := r.registry.RestartAllOnProfile(ctx, oldID, next.AccountID(), next.DisplayName())
	r.SetActive(next.AccountID())

	slog.InfoContext(ctx, "account swapped",
		"from", oldID, "to", next.AccountID(), "migrated", migrated, "reason", reason)

	return &SwapResult{
		FromID:   oldID,
		ToID:     next.AccountID(),
		ToName:   next.DisplayName(),
		Migrated: migrated,
		Reason:   reason,
	}, nil
}

func findAccount(pool []profile.Account, id string) profile.Account {
	for _, acc := range pool {
		if acc != nil && acc.AccountID() == id {
			return acc
		}
	}
	return nil
}
