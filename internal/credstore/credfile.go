package credstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// oauthBlob is the nested OAuth object inside the credential file.
type oauthBlob struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAt        int64    `json:"expiresAt,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
	RateLimitTier    string   `json:"rateLimitTier,omitempty"`
	Email            string   `json:"email,omitempty"`
}

// credentialPayload is the tagged schema for the persisted JSON
// document, including fields from historical shapes: the OAuth object
// used to live at the top level, and the email has appeared both at
// the top level and under an account object.
type credentialPayload struct {
	ClaudeAiOauth *oauthBlob `json:"claudeAiOauth,omitempty"`

	// Legacy top-level shape.
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	Email        string `json:"email,omitempty"`
	Account      *struct {
		Email string `json:"email,omitempty"`
	} `json:"account,omitempty"`
}

// normalize migrates whichever historical shape was stored into the
// current nested form.
func (p *credentialPayload) normalize() oauthBlob {
	if p.ClaudeAiOauth != nil {
		blob := *p.ClaudeAiOauth
		if blob.Email == "" {
			blob.Email = p.topLevelEmail()
		}
		return blob
	}
	return oauthBlob{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
		Email:        p.topLevelEmail(),
	}
}

func (p *credentialPayload) topLevelEmail() string {
	if p.Email != "" {
		return p.Email
	}
	if p.Account != nil {
		return p.Account.Email
	}
	return ""
}

// parseCredentialPayload decodes a stored credential document.
// Malformed JSON and unexpected shapes are treated as "no credentials"
// and logged, never surfaced as errors.
func parseCredentialPayload(data []byte) FullCredentials {
	if len(data) == 0 {
		return FullCredentials{}
	}

	var payload credentialPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("malformed credential payload, treating as absent", "error", err)
		return FullCredentials{}
	}

	blob := payload.normalize()
	if blob.AccessToken != "" && !validToken(blob.AccessToken) {
		slog.Warn("stored token does not match provider prefix, treating as absent")
		return FullCredentials{}
	}

	return FullCredentials{
		PlatformCredentials: PlatformCredentials{
			Token: blob.AccessToken,
			Email: blob.Email,
		},
		RefreshToken:     blob.RefreshToken,
		ExpiresAt:        blob.ExpiresAt,
		Scopes:           blob.Scopes,
		SubscriptionType: blob.SubscriptionType,
		RateLimitTier:    blob.RateLimitTier,
	}
}

// serializeCredentialPayload encodes credentials in the current nested
// document form.
func serializeCredentialPayload(creds FullCredentials) ([]byte, error) {
	payload := credentialPayload{
		ClaudeAiOauth: &oauthBlob{
			AccessToken:      creds.Token,
			RefreshToken:     creds.RefreshToken,
			ExpiresAt:        creds.ExpiresAt,
			Scopes:           creds.Scopes,
			SubscriptionType: creds.SubscriptionType,
			RateLimitTier:    creds.RateLimitTier,
			Email:            creds.Email,
		},
	}
	return json.MarshalIndent(payload, "", "  ")
}

// fileStore reads and writes the JSON credential file inside a profile
// directory. It is the primary store on Windows and the fallback on
// Linux.
type fileStore struct {
	defaultDir string
}

// Compile-time check to ensure fileStore implements platformStore
var _ platformStore = (*fileStore)(nil)

func newFileStore(defaultDir string) *fileStore {
	return &fileStore{defaultDir: defaultDir}
}

func (f *fileStore) path(ref Ref) (string, error) {
	dir := ref.ConfigDir
	if dir == "" {
		dir = f.defaultDir
	}
	path := filepath.Join(dir, credentialsFileName)
	if err := validateCredentialPath(path); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fileStore) locationKey(ref Ref) string {
	path, err := f.path(ref)
	if err != nil {
		return "file:" + ref.ID
	}
	return "file:" + path
}

func (f *fileStore) read(ctx context.Context, ref Ref) (FullCredentials, error) {
	if err := ctx.Err(); err != nil {
		return FullCredentials{}, err
	}

	path, err := f.path(ref)
	if err != nil {
		return FullCredentials{}, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Missing file is the normal unauthenticated state.
		return FullCredentials{}, nil
	}
	if err != nil {
		return FullCredentials{}, err
	}

	return parseCredentialPayload(data), nil
}

func (f *fileStore) write(ctx context.Context, ref Ref, creds FullCredentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.path(ref)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := serializeCredentialPayload(creds)
	if err != nil {
		return err
	}

	// Temp file + rename keeps the file whole across crashes.
	tempFile, err := os.CreateTemp(filepath.Dir(path), "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, 0600); err != nil {
		return err
	}
	return os.Rename(tempName, path)
}
