package credstore

// Ref identifies one account's credential location.
type Ref struct {
	// ID is the stable account identifier, used for cache scoping.
	ID string
	// Name is the human-facing account name.
	Name string
	// ConfigDir is the profile directory backing this account. Empty
	// means the default profile directory.
	ConfigDir string
}

// PlatformCredentials is the minimal read result.
type PlatformCredentials struct {
	Token string
	Email string
	// Err carries the structured error string for exceptional reads
	// (locked store, timeout, missing helper). A simply-absent secret
	// leaves Err empty.
	Err string
}

// FullCredentials extends PlatformCredentials with the fields needed
// for the refresh exchange.
type FullCredentials struct {
	PlatformCredentials

	RefreshToken string
	// ExpiresAt is epoch milliseconds. Zero means unknown, which
	// callers must treat as "assume expired", never "assume valid".
	ExpiresAt        int64
	Scopes           []string
	SubscriptionType string
	RateLimitTier    string
}

// TokenUpdate carries the fields produced by a refresh exchange.
// Email, subscription type, and rate-limit tier are not part of the
// exchange response and are preserved from the prior stored value.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	Scopes       []string
}

// UpdateResult reports the outcome of a credential write.
type UpdateResult struct {
	Success bool
	Err     string
}
