package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// platformStore is one OS backend behind the Store.
type platformStore interface {
	// read returns the stored credentials, or a zero value when the
	// secret is simply absent. Errors are reserved for exceptional
	// conditions: locked store, timeout, missing helper, bad path.
	read(ctx context.Context, ref Ref) (FullCredentials, error)

	// write persists the full credential set for the ref.
	write(ctx context.Context, ref Ref, creds FullCredentials) error

	// locationKey returns the storage-location-derived cache key.
	locationKey(ref Ref) string
}

// Store is the OS-agnostic credential store. Construct one instance at
// application start and inject it by reference into dependents.
type Store struct {
	platform platformStore
	cache    *credCache
}

// Option configures a Store.
type Option func(*Store)

// WithPlatformStore replaces the OS-selected backend. Used by tests
// and by hosts that bring their own storage.
func WithPlatformStore(ps platformStore) Option {
	return func(s *Store) {
		s.platform = ps
	}
}

// WithFileBackend forces the JSON-file backend rooted at defaultDir,
// bypassing the OS secret store entirely. Useful for headless hosts
// and tests.
func WithFileBackend(defaultDir string) Option {
	return func(s *Store) {
		s.platform = newFileStore(defaultDir)
	}
}

// New creates a Store backed by the current platform's secret storage.
func New(opts ...Option) (*Store, error) {
	s := &Store{cache: newCredCache()}
	for _, opt := range opts {
		opt(s)
	}

	if s.platform == nil {
		defaultDir, err := defaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default profile directory: %w", err)
		}
		s.platform = newPlatformStore(defaultDir)
	}

	return s, nil
}

// defaultConfigDir resolves the default profile directory used when a
// Ref carries no explicit one.
func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude"), nil
}

// GetCredentials returns the minimal credential view for the account,
// served from cache unless stale or forceRefresh is set.
func (s *Store) GetCredentials(ctx context.Context, ref Ref, forceRefresh bool) PlatformCredentials {
	return s.GetFullCredentials(ctx, ref, forceRefresh).PlatformCredentials
}

// GetFullCredentials returns the full credential set for the account,
// served from cache unless stale or forceRefresh is set.
func (s *Store) GetFullCredentials(ctx context.Context, ref Ref, forceRefresh bool) FullCredentials {
	key := s.platform.locationKey(ref)

	if !forceRefresh {
		if creds, ok := s.cache.get(key); ok {
			return creds
		}
	}

	creds, err := s.platform.read(ctx, ref)
	if err != nil {
		slog.WarnContext(ctx, "credential read failed", "account", ref.ID, "error", err)
		creds = FullCredentials{PlatformCredentials: PlatformCredentials{Err: err.Error()}}
		s.cache.put(key, creds, true)
		return creds
	}

	s.cache.put(key, creds, false)
	return creds
}

// UpdateCredentials persists a refreshed token pair. The email,
// subscription type, and rate-limit tier of the prior value are
// carried over, as the refresh exchange does not return them. The
// cache entry for the account is invalidated regardless of outcome so
// a revoked-but-cached token is never served.
func (s *Store) UpdateCredentials(ctx context.Context, ref Ref, update TokenUpdate) UpdateResult {
	key := s.platform.locationKey(ref)
	defer s.cache.invalidate(key)

	if update.AccessToken == "" {
		return UpdateResult{Err: "empty access token"}
	}
	if !validToken(update.AccessToken) {
		return UpdateResult{Err: "access token does not match provider prefix"}
	}

	prior, err := s.platform.read(ctx, ref)
	if err != nil {
		// The prior value only supplies carried-over metadata; a read
		// failure must not block persisting the new pair.
		slog.WarnContext(ctx, "could not read prior credentials before update", "account", ref.ID, "error", err)
		prior = FullCredentials{}
	}

	next := FullCredentials{
		PlatformCredentials: PlatformCredentials{
			Token: update.AccessToken,
			Email: prior.Email,
		},
		RefreshToken:     update.RefreshToken,
		ExpiresAt:        update.ExpiresAt,
		Scopes:           update.Scopes,
		SubscriptionType: prior.SubscriptionType,
		RateLimitTier:    prior.RateLimitTier,
	}
	if next.Scopes == nil {
		next.Scopes = prior.Scopes
	}

	if err := s.platform.write(ctx, ref, next); err != nil {
		slog.ErrorContext(ctx, "credential write failed", "account", ref.ID, "error", err)
		return UpdateResult{Err: err.Error()}
	}

	return UpdateResult{Success: true}
}

// ClearCache drops the cache entries for the given accounts, or every
// entry when called with none. An explicit bypass path for recovering
// immediately after an external re-authentication.
func (s *Store) ClearCache(refs ...Ref) {
	if len(refs) == 0 {
		s.cache.clear()
		return
	}
	for _, ref := range refs {
		s.cache.invalidate(s.platform.locationKey(ref))
	}
}
