//go:build darwin || linux

package credstore

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// helperTimeout bounds every secret-store helper invocation so a
// locked store cannot hang the host indefinitely.
const helperTimeout = 5 * time.Second

// runHelper invokes an external secret-store helper with an argument
// array (never a shell) and a bounded deadline. stdin may be nil.
func runHelper(ctx context.Context, stdin []byte, name string, args ...string) (stdout []byte, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, helperTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), strings.TrimSpace(errBuf.String()), err
}
