// Package refresher keeps OAuth access tokens valid, proactively ahead
// of expiry and reactively after an observed 401.
//
// The provider revokes the old access+refresh pair the instant a
// refresh succeeds, so a fresh pair is persisted before a refresh is
// reported successful; when persistence fails the credential cache is
// still invalidated so a revoked-but-cached token is never served.
package refresher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/agentdeck/credkeeper/internal/credstore"
)

const (
	// ClientID is the public OAuth2 client identifier (PKCE flow, no
	// client secret).
	ClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	// DefaultThreshold is how far before expiry a token counts as
	// near-expiring.
	DefaultThreshold = 30 * time.Minute

	// refreshAttempts bounds the exchange: one initial attempt plus
	// two retries for transient failures.
	refreshAttempts = 3
)

// Endpoint is the provider's OAuth2 token endpoint. The exchange is a
// form-encoded POST with the client id in the parameters.
var Endpoint = oauth2.Endpoint{
	TokenURL:  "https://console.anthropic.com/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

var scopes = []string{"org:create_api_key", "user:profile", "user:inference"}

// Result is the outcome of a token validity check or refresh.
type Result struct {
	// Token is the access token to use. Empty after a permanent
	// refresh failure; possibly stale after an exhausted transient
	// failure or when no refresh token exists (see Err).
	Token        string
	WasRefreshed bool
	// Err is advisory when Token is non-empty: the caller may proceed
	// and surface a 401 if it occurs.
	Err string
	// PersistenceFailed is set when a fresh pair was obtained but not
	// durably stored. The caller should prompt for re-authentication,
	// otherwise access is silently lost on the next restart.
	PersistenceFailed bool
}

// Refresher decides whether a token needs renewal and executes the
// refresh exchange, persisting results through the credential store.
type Refresher struct {
	store      *credstore.Store
	cfg        *oauth2.Config
	httpClient *http.Client
	threshold  time.Duration
	// retryInterval seeds the exponential backoff between transient
	// retry attempts.
	retryInterval time.Duration

	// group serializes the read-decide-refresh-write sequence per
	// account, so concurrent callers share one refresh instead of
	// racing each other's just-written pair into revocation.
	group singleflight.Group
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithEndpoint overrides the token endpoint. Used by tests.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(r *Refresher) {
		r.cfg.Endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Refresher) {
		r.httpClient = client
	}
}

// WithThreshold overrides the near-expiry threshold.
func WithThreshold(threshold time.Duration) Option {
	return func(r *Refresher) {
		r.threshold = threshold
	}
}

// WithRetryInterval overrides the initial backoff interval between
// transient retries. Used by tests.
func WithRetryInterval(interval time.Duration) Option {
	return func(r *Refresher) {
		r.retryInterval = interval
	}
}

// New creates a Refresher persisting through the given store.
func New(store *credstore.Store, opts ...Option) *Refresher {
	r := &Refresher{
		store: store,
		cfg: &oauth2.Config{
			ClientID: ClientID,
			Scopes:   scopes,
			Endpoint: Endpoint,
		},
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		threshold:     DefaultThreshold,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsNearExpiry reports whether a token should be renewed. An unknown
// expiry (zero or negative) is treated as "assume expired", never as
// "assume valid".
func IsNearExpiry(expiresAtMillis int64, threshold time.Duration) bool {
	if expiresAtMillis <= 0 {
		return true
	}
	return time.Now().Add(threshold).UnixMilli() >= expiresAtMillis
}

// EnsureValidToken returns a token for the account, refreshing it
// first when it is near expiry and a refresh token is available.
func (r *Refresher) EnsureValidToken(ctx context.Context, ref credstore.Ref) Result {
	return r.serialized(ref, func() Result { return r.ensure(ctx, ref) })
}

// ReactiveRefresh performs the refresh exchange unconditionally,
// invoked after an observed 401 rather than proactively.
func (r *Refresher) ReactiveRefresh(ctx context.Context, ref credstore.Ref) Result {
	return r.serialized(ref, func() Result {
		creds := r.store.GetFullCredentials(ctx, ref, true)
		if creds.Err != "" {
			return Result{Err: creds.Err}
		}
		if creds.RefreshToken == "" {
			return Result{Err: "no refresh token available, re-authentication required"}
		}
		return r.refresh(ctx, ref, creds)
	})
}

// serialized runs fn under the per-account flight group.
func (r *Refresher) serialized(ref credstore.Ref, fn func() Result) Result {
	v, _, _ := r.group.Do(ref.ID, func() (any, error) {
		return fn(), nil
	})
	return v.(Result)
}

func (r *Refresher) ensure(ctx context.Context, ref credstore.Ref) Result {
	creds := r.store.GetFullCredentials(ctx, ref, false)
	if creds.Err != "" {
		return Result{Err: creds.Err}
	}
	if creds.Token == "" && creds.RefreshToken == "" {
		return Result{Err: "not authenticated"}
	}

	if !IsNearExpiry(creds.ExpiresAt, r.threshold) {
		return Result{Token: creds.Token}
	}

	if creds.RefreshToken == "" {
		// Nothing to refresh with: hand back the possibly-stale token
		// with an advisory error so the caller can surface a 401.
		return Result{
			Token: creds.Token,
			Err:   "token near expiry and no refresh token available",
		}
	}

	return r.refresh(ctx, ref, creds)
}

// refresh executes the exchange and persists the new pair.
func (r *Refresher) refresh(ctx context.Context, ref credstore.Ref, creds credstore.FullCredentials) Result {
	token, err := r.exchange(ctx, creds.RefreshToken)
	if err != nil {
		if isPermanentAuthError(err) {
			// A revoked grant never recovers by retrying; clear the
			// cache immediately so the dead token is not served into
			// a refresh-then-401 loop.
			r.store.ClearCache(ref)
			return Result{Err: "refresh rejected permanently: " + err.Error()}
		}
		// Transient exhaustion: best-effort continuity with the stale
		// token rather than hard failure.
		return Result{Token: creds.Token, Err: "refresh failed: " + err.Error()}
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}

	var expiresAt int64
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry.UnixMilli()
	}

	update := credstore.TokenUpdate{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	if result := r.store.UpdateCredentials(ctx, ref, update); !result.Success {
		// UpdateCredentials has already invalidated the cache, so the
		// revoked pair cannot be served from it.
		return Result{
			Token:             token.AccessToken,
			WasRefreshed:      true,
			PersistenceFailed: true,
			Err:               "refreshed but could not persist: " + result.Err,
		}
	}

	return Result{Token: token.AccessToken, WasRefreshed: true}
}

// exchange performs the token endpoint POST with bounded retries.
// Permanent authorization failures are never retried.
func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	source := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.retryInterval

	return backoff.Retry(ctx, func() (*oauth2.Token, error) {
		token, err := source.Token()
		if err != nil {
			if isPermanentAuthError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return token, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(refreshAttempts))
}

// isPermanentAuthError classifies exchange failures. invalid_grant and
// invalid_client mean the stored pair is revoked; everything else
// (network errors, 5xx) is transient.
func isPermanentAuthError(err error) bool {
	if err == nil {
		return false
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_client":
			return true
		}
		// Some deployments return the code only in the raw body.
		body := string(retrieveErr.Body)
		return strings.Contains(body, "invalid_grant") || strings.Contains(body, "invalid_client")
	}
	return false
}
