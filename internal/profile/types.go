package profile

import "time"

// Kind discriminates the two account variants.
type Kind string

const (
	KindOAuth Kind = "oauth"
	KindAPI   Kind = "api"
)

// LimitKind identifies which usage window triggered a rate limit.
type LimitKind string

const (
	LimitSession LimitKind = "session"
	LimitWeekly  LimitKind = "weekly"
)

// RateLimitStatus is the per-account answer from a rate-limit oracle.
type RateLimitStatus struct {
	Limited bool
	Kind    LimitKind
	ResetAt time.Time
}

// Oracle supplies rate-limit state per account. Implementations are
// external collaborators (usage monitors, response-header parsers).
type Oracle interface {
	Status(accountID string) RateLimitStatus
}

// StaticOracle is a fixed-answer Oracle, used by the CLI and tests.
type StaticOracle map[string]RateLimitStatus

// Compile-time check to ensure StaticOracle implements Oracle
var _ Oracle = (StaticOracle)(nil)

// Status returns the stored state for the account, zero value if absent.
func (s StaticOracle) Status(accountID string) RateLimitStatus {
	return s[accountID]
}

// Settings are the usage thresholds that drive proactive switching.
// Comparisons against thresholds are strict: a reading equal to the
// threshold already makes the account unavailable.
type Settings struct {
	SessionThreshold float64 `json:"session_threshold"`
	WeeklyThreshold  float64 `json:"weekly_threshold"`
	Enabled          bool    `json:"enabled"`
}

// Account is the common surface of the two profile variants.
type Account interface {
	// AccountID returns the stable identifier of the account.
	AccountID() string
	// DisplayName returns the human-facing name.
	DisplayName() string
	// AccountKind returns the variant discriminator.
	AccountKind() Kind
}

// OAuthProfile is an account backed by a platform secret store and an
// OAuth token pair. Usage percentages are a snapshot supplied by the
// caller, not live readings.
type OAuthProfile struct {
	ID        string
	Name      string
	ConfigDir string

	Authenticated       bool
	SessionUsagePercent float64
	WeeklyUsagePercent  float64
}

// Compile-time check to ensure OAuthProfile implements Account
var _ Account = (*OAuthProfile)(nil)

func (p *OAuthProfile) AccountID() string   { return p.ID }
func (p *OAuthProfile) DisplayName() string { return p.Name }
func (p *OAuthProfile) AccountKind() Kind   { return KindOAuth }

// APIProfile is an account backed by a static API key. It has no usage
// ceiling: once authenticated it is always unlimited.
type APIProfile struct {
	ID      string
	Name    string
	APIKey  string
	BaseURL string
}

// Compile-time check to ensure APIProfile implements Account
var _ Account = (*APIProfile)(nil)

func (p *APIProfile) AccountID() string   { return p.ID }
func (p *APIProfile) DisplayName() string { return p.Name }
func (p *APIProfile) AccountKind() Kind   { return KindAPI }

// Authenticated reports whether the API profile has usable credentials.
func (p *APIProfile) Authenticated() bool {
	return p.APIKey != "" && p.BaseURL != ""
}

// UnifiedAccount is the normalized view over both variants used during
// selection. Built fresh on every call, never persisted.
type UnifiedAccount struct {
	ID             string
	Kind           Kind
	Authenticated  bool
	Available      bool
	RateLimited    bool
	RateLimitKind  LimitKind
	RateLimitReset time.Time
	SessionPercent float64
	WeeklyPercent  float64
}
