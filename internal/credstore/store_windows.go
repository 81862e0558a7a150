//go:build windows

package credstore

import (
	"context"
	"log/slog"

	"github.com/danieljoos/wincred"
)

// credManagerTargetBase is the Credential Manager target name for the
// default profile directory. Non-default directories append a hash of
// their path (see serviceName).
const credManagerTargetBase = "Claude Code-credentials"

// winStore reads both the JSON credential file and the Credential
// Manager. The external CLI always writes the file on login, so when
// both hold a token the file is authoritative. Writes go to the file
// first; mirroring into the Credential Manager is best-effort.
type winStore struct {
	defaultDir string
	file       *fileStore
}

// Compile-time check to ensure winStore implements platformStore
var _ platformStore = (*winStore)(nil)

func newPlatformStore(defaultDir string) platformStore {
	return &winStore{
		defaultDir: defaultDir,
		file:       newFileStore(defaultDir),
	}
}

func (w *winStore) target(ref Ref) (string, error) {
	name := serviceName(credManagerTargetBase, ref.ConfigDir, w.defaultDir)
	if err := validateServiceName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (w *winStore) locationKey(ref Ref) string {
	return w.file.locationKey(ref)
}

func (w *winStore) read(ctx context.Context, ref Ref) (FullCredentials, error) {
	fileCreds, fileErr := w.file.read(ctx, ref)
	if fileErr == nil && fileCreds.Token != "" {
		return fileCreds, nil
	}

	if native := w.readNative(ctx, ref); native.Token != "" {
		return native, nil
	}

	// Neither store holds a token: report the file's (typically
	// empty) result.
	return fileCreds, fileErr
}

func (w *winStore) readNative(ctx context.Context, ref Ref) FullCredentials {
	target, err := w.target(ref)
	if err != nil {
		slog.WarnContext(ctx, "invalid credential manager target", "account", ref.ID, "error", err)
		return FullCredentials{}
	}

	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		// Not-found and access errors alike: the file remains the
		// primary store either way.
		slog.DebugContext(ctx, "credential manager lookup missed", "account", ref.ID, "error", err)
		return FullCredentials{}
	}

	return parseCredentialPayload(cred.CredentialBlob)
}

func (w *winStore) write(ctx context.Context, ref Ref, creds FullCredentials) error {
	// The file is the primary store; its write decides the outcome.
	if err := w.file.write(ctx, ref, creds); err != nil {
		return err
	}

	target, err := w.target(ref)
	if err != nil {
		slog.WarnContext(ctx, "skipping credential manager mirror", "account", ref.ID, "error", err)
		return nil
	}

	data, err := serializeCredentialPayload(creds)
	if err != nil {
		slog.WarnContext(ctx, "skipping credential manager mirror", "account", ref.ID, "error", err)
		return nil
	}

	native := wincred.NewGenericCredential(target)
	native.CredentialBlob = data
	native.Persist = wincred.PersistLocalMachine
	if err := native.Write(); err != nil {
		// Non-fatal once the file write succeeded.
		slog.WarnContext(ctx, "credential manager mirror failed", "account", ref.ID, "error", err)
	}
	return nil
}
