//go:build linux

package credstore

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
)

// secretServiceAttr is the Secret Service attribute value for the
// default profile directory. Non-default directories append a hash of
// their path (see serviceName).
const secretServiceAttr = "claude-code"

// secretToolStore reads and writes the Secret Service through
// secret-tool(1), falling back to the JSON credential file when the
// helper is absent or failing. A clean "not found" does not trigger
// the fallback: it is the normal unauthenticated state.
type secretToolStore struct {
	defaultDir string
	file       *fileStore
}

// Compile-time check to ensure secretToolStore implements platformStore
var _ platformStore = (*secretToolStore)(nil)

func newPlatformStore(defaultDir string) platformStore {
	return &secretToolStore{
		defaultDir: defaultDir,
		file:       newFileStore(defaultDir),
	}
}

func (s *secretToolStore) attr(ref Ref) (string, error) {
	name := serviceName(secretServiceAttr, ref.ConfigDir, s.defaultDir)
	if err := validateServiceName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *secretToolStore) locationKey(ref Ref) string {
	return "secret-service:" + serviceName(secretServiceAttr, ref.ConfigDir, s.defaultDir)
}

func (s *secretToolStore) read(ctx context.Context, ref Ref) (FullCredentials, error) {
	attr, err := s.attr(ref)
	if err != nil {
		return FullCredentials{}, err
	}

	stdout, stderr, err := runHelper(ctx, nil,
		"secret-tool", "lookup", "service", attr)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			slog.DebugContext(ctx, "secret-tool not installed, using credential file", "account", ref.ID)
			return s.file.read(ctx, ref)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr == "" {
			// secret-tool exits non-zero with no diagnostics when no
			// matching secret exists.
			return FullCredentials{}, nil
		}

		slog.WarnContext(ctx, "secret-tool lookup failed, using credential file",
			"account", ref.ID, "error", err, "stderr", stderr)
		return s.file.read(ctx, ref)
	}

	return parseCredentialPayload(stdout), nil
}

func (s *secretToolStore) write(ctx context.Context, ref Ref, creds FullCredentials) error {
	attr, err := s.attr(ref)
	if err != nil {
		return err
	}

	data, err := serializeCredentialPayload(creds)
	if err != nil {
		return err
	}

	// The secret arrives on stdin, never on the command line.
	_, stderr, err := runHelper(ctx, data,
		"secret-tool", "store", "--label=Claude Code", "service", attr)
	if err != nil {
		slog.WarnContext(ctx, "secret-tool store failed, writing credential file",
			"account", ref.ID, "error", err, "stderr", stderr)
		return s.file.write(ctx, ref, creds)
	}
	return nil
}
