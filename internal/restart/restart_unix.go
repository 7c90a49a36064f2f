//go:build unix

package restart

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var execFn = unix.Exec

// relaunch replaces the process image so the pid and controlling terminal
// are kept.
func relaunch(binary string, args, env []string) error {
	if err := execFn(binary, argv(binary, args), env); err != nil {
		return fmt.Errorf("restart: exec %s: %w", binary, err)
	}
	return nil
}
