package sidecar

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns the xxh3 digest of the file at path as 16 hex digits.
// It identifies which build of the worker a run used.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the resolved sidecar binary
	if err != nil {
		return "", fmt.Errorf("opening sidecar for fingerprint: %w", err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing sidecar: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
