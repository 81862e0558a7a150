package credstore

import "testing"

func TestValidateServiceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "default service", input: "Claude Code-credentials"},
		{name: "hashed service", input: "claude-code-1a2b3c4d"},
		{name: "empty", input: "", wantErr: true},
		{name: "shell metacharacters", input: "svc; rm -rf /", wantErr: true},
		{name: "quote injection", input: `svc" -g "`, wantErr: true},
		{name: "leading dash", input: "-s", wantErr: true},
		{name: "newline", input: "svc\nother", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServiceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateServiceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredentialPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "expected file", input: "/home/user/.claude/.credentials.json"},
		{name: "traversal", input: "/home/user/../../etc/.credentials.json", wantErr: true},
		{name: "wrong suffix", input: "/home/user/.claude/creds.txt", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCredentialPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCredentialPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestServiceName(t *testing.T) {
	const defaultDir = "/home/user/.claude"

	t.Run("default directory uses base name", func(t *testing.T) {
		if got := serviceName("claude-code", "", defaultDir); got != "claude-code" {
			t.Errorf("got %q", got)
		}
		if got := serviceName("claude-code", defaultDir, defaultDir); got != "claude-code" {
			t.Errorf("explicit default dir: got %q", got)
		}
	})

	t.Run("non-default directory appends hash", func(t *testing.T) {
		got := serviceName("claude-code", "/home/user/.claude-work", defaultDir)
		if len(got) != len("claude-code")+1+8 {
			t.Fatalf("got %q, want base plus 8 hex chars", got)
		}
		if err := validateServiceName(got); err != nil {
			t.Errorf("derived name fails validation: %v", err)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := serviceName("claude-code", "/home/user/.claude-work", defaultDir)
		b := serviceName("claude-code", "/home/user/.claude-work/", defaultDir)
		if a != b {
			t.Errorf("trailing slash changed the hash: %q vs %q", a, b)
		}
	})
}

func TestValidToken(t *testing.T) {
	if !validToken("sk-ant-oat01-abc") {
		t.Error("provider-prefixed token rejected")
	}
	if validToken("ghp_something") {
		t.Error("foreign token accepted")
	}
}
