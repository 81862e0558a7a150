package credstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// tokenPrefix is the provider's known access token prefix. Tokens
	// without it are rejected as malformed rather than passed on.
	tokenPrefix = "sk-ant-"

	// credentialsFileName is the fixed name of the JSON credential
	// file inside a profile directory.
	credentialsFileName = ".credentials.json"
)

// serviceNamePattern is the allow-list for identifiers interpolated
// into OS helper invocations (keychain service names, Secret Service
// attributes, Credential Manager target names).
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]*$`)

// validateServiceName rejects any helper-bound identifier outside the
// strict allow-list.
func validateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("empty service name")
	}
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("service name %q contains disallowed characters", name)
	}
	return nil
}

// validateCredentialPath rejects traversal sequences and paths that do
// not end in the expected credential file name.
func validateCredentialPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty credential path")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("credential path %q contains a traversal sequence", path)
		}
	}
	if filepath.Base(path) != credentialsFileName {
		return fmt.Errorf("credential path %q does not end in %s", path, credentialsFileName)
	}
	return nil
}

// validToken reports whether a stored access token matches the
// provider's known prefix.
func validToken(token string) bool {
	return strings.HasPrefix(token, tokenPrefix)
}

// dirHash returns the first 8 hex characters of the SHA-256 of the
// cleaned directory path. Non-default profile directories get their
// own keychain service / Secret Service attribute derived from it.
func dirHash(dir string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(dir)))
	return hex.EncodeToString(sum[:])[:8]
}

// serviceName derives the deterministic helper identifier for a
// profile directory: the base name for the default directory, or
// base-{hash} otherwise.
func serviceName(base, configDir, defaultDir string) string {
	if configDir == "" || filepath.Clean(configDir) == filepath.Clean(defaultDir) {
		return base
	}
	return base + "-" + dirHash(configDir)
}
