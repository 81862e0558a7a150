package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCredentialPayload(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantToken string
		wantEmail string
	}{
		{
			name: "current nested shape",
			input: `{"claudeAiOauth": {"accessToken": "sk-ant-abc", "refreshToken": "r1",
				"expiresAt": 1700000000000, "email": "me@example.com",
				"subscriptionType": "max", "rateLimitTier": "default"}}`,
			wantToken: "sk-ant-abc",
			wantEmail: "me@example.com",
		},
		{
			name:      "legacy flat shape",
			input:     `{"accessToken": "sk-ant-abc", "refreshToken": "r1", "email": "me@example.com"}`,
			wantToken: "sk-ant-abc",
			wantEmail: "me@example.com",
		},
		{
			name:      "legacy email under account object",
			input:     `{"accessToken": "sk-ant-abc", "account": {"email": "me@example.com"}}`,
			wantToken: "sk-ant-abc",
			wantEmail: "me@example.com",
		},
		{
			name:      "nested shape with top-level email",
			input:     `{"claudeAiOauth": {"accessToken": "sk-ant-abc"}, "email": "me@example.com"}`,
			wantToken: "sk-ant-abc",
			wantEmail: "me@example.com",
		},
		{
			name:      "malformed JSON treated as absent",
			input:     `{"claudeAiOauth": `,
			wantToken: "",
		},
		{
			name:      "unexpected shape treated as absent",
			input:     `[1, 2, 3]`,
			wantToken: "",
		},
		{
			name:      "wrong token prefix treated as absent",
			input:     `{"claudeAiOauth": {"accessToken": "totally-not-a-token"}}`,
			wantToken: "",
		},
		{
			name:      "empty input",
			input:     "",
			wantToken: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCredentialPayload([]byte(tt.input))
			if got.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", got.Token, tt.wantToken)
			}
			if got.Email != tt.wantEmail {
				t.Errorf("email = %q, want %q", got.Email, tt.wantEmail)
			}
			if got.Err != "" {
				t.Errorf("parse produced error %q, malformed data must read as absent", got.Err)
			}
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := newFileStore(dir)
	ref := Ref{ID: "a", ConfigDir: dir}

	creds := FullCredentials{
		PlatformCredentials: PlatformCredentials{Token: "sk-ant-abc", Email: "me@example.com"},
		RefreshToken:        "r1",
		ExpiresAt:           1700000000000,
		Scopes:              []string{"user:inference"},
		SubscriptionType:    "max",
		RateLimitTier:       "default",
	}

	if err := fs.write(context.Background(), ref, creds); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := fs.read(context.Background(), ref)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Token != creds.Token || got.RefreshToken != creds.RefreshToken || got.ExpiresAt != creds.ExpiresAt {
		t.Errorf("read back %+v, want %+v", got, creds)
	}
	if got.Email != creds.Email || got.SubscriptionType != creds.SubscriptionType {
		t.Errorf("metadata lost: %+v", got)
	}

	info, err := os.Stat(filepath.Join(dir, credentialsFileName))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credential file permissions = %04o, want 0600", perm)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	fs := newFileStore(t.TempDir())

	got, err := fs.read(context.Background(), Ref{ID: "a"})
	if err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if got.Token != "" {
		t.Errorf("missing file produced token %q", got.Token)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs := newFileStore(t.TempDir())
	ref := Ref{ID: "a", ConfigDir: "../../etc"}

	if _, err := fs.read(context.Background(), ref); err == nil {
		t.Error("traversal path should be rejected on read")
	}
	if err := fs.write(context.Background(), ref, FullCredentials{}); err == nil {
		t.Error("traversal path should be rejected on write")
	}
}
