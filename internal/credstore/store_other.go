//go:build !darwin && !linux && !windows

package credstore

// Platforms without a native secret store use the JSON credential file
// directly.
func newPlatformStore(defaultDir string) platformStore {
	return newFileStore(defaultDir)
}
