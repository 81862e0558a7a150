//go:build darwin

package credstore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"os/user"
)

// keychainServiceBase is the generic-password service name for the
// default profile directory. Non-default directories append a hash of
// their path (see serviceName).
const keychainServiceBase = "Claude Code-credentials"

// macOS security(1) exits with 44 (errSecItemNotFound) when no
// matching generic password exists.
const errSecItemNotFound = 44

// keychainStore reads and writes the login keychain through the
// security(1) helper.
type keychainStore struct {
	defaultDir string
	// account is the keychain account attribute attached to entries
	// written by this process.
	account string
}

// Compile-time check to ensure keychainStore implements platformStore
var _ platformStore = (*keychainStore)(nil)

func newPlatformStore(defaultDir string) platformStore {
	account := "credkeeper"
	if u, err := user.Current(); err == nil && u.Username != "" {
		account = u.Username
	}
	return &keychainStore{defaultDir: defaultDir, account: account}
}

func (k *keychainStore) service(ref Ref) (string, error) {
	name := serviceName(keychainServiceBase, ref.ConfigDir, k.defaultDir)
	if err := validateServiceName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (k *keychainStore) locationKey(ref Ref) string {
	return "keychain:" + serviceName(keychainServiceBase, ref.ConfigDir, k.defaultDir)
}

func (k *keychainStore) read(ctx context.Context, ref Ref) (FullCredentials, error) {
	service, err := k.service(ref)
	if err != nil {
		return FullCredentials{}, err
	}

	stdout, stderr, err := runHelper(ctx, nil,
		"security", "find-generic-password", "-s", service, "-w")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound {
			// Absent secret is the normal unauthenticated state.
			return FullCredentials{}, nil
		}
		return FullCredentials{}, fmt.Errorf("keychain lookup for %s: %w (%s)", service, err, stderr)
	}

	return parseCredentialPayload(stdout), nil
}

// write replaces the keychain entry for the service. The keychain has
// no service-name-keyed upsert, so an existing entry is deleted first;
// otherwise a stale entry under a different account name would shadow
// the new one.
func (k *keychainStore) write(ctx context.Context, ref Ref, creds FullCredentials) error {
	service, err := k.service(ref)
	if err != nil {
		return err
	}

	data, err := serializeCredentialPayload(creds)
	if err != nil {
		return err
	}

	// Delete failures for a missing entry are expected and ignored.
	_, _, _ = runHelper(ctx, nil,
		"security", "delete-generic-password", "-s", service)

	_, stderr, err := runHelper(ctx, nil,
		"security", "add-generic-password",
		"-s", service, "-a", k.account, "-w", string(data))
	if err != nil {
		return fmt.Errorf("keychain write for %s: %w (%s)", service, err, stderr)
	}
	return nil
}
