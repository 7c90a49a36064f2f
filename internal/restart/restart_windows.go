//go:build windows

package restart

import (
	"fmt"
	"os"
	"os/exec"
)

// relaunch starts a new copy; the running binary is locked on Windows and
// cannot be replaced in place.
func relaunch(binary string, args, env []string) error {
	full := argv(binary, args)
	cmd := exec.Command(binary, full[1:]...) // #nosec G204 -- our own executable
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("restart: starting %s: %w", binary, err)
	}
	return cmd.Process.Release()
}
