// Package restart relaunches the running tether binary after the sidecar
// has been stopped.
package restart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/tether/internal/log"
)

// Self restarts the current executable with the original arguments and
// environment.
//
// On unix the process image is replaced and Self only returns on error.
// On Windows a new copy is started and Self returns nil; the caller must
// then exit.
func Self() error {
	exe, err := executable()
	if err != nil {
		return err
	}
	log.Info(log.CatLifecycle, "Restarting application", "path", exe)
	return relaunch(exe, os.Args, os.Environ())
}

func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("restart: locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// argv returns args with argv[0] replaced by binary.
func argv(binary string, args []string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, binary)
	if len(args) > 1 {
		out = append(out, args[1:]...)
	}
	return out
}
