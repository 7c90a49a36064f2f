// Package main is the entry point for tether.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/tether/cmd"
	"github.com/zjrosen/tether/internal/restart"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))

	code, again := cmd.Execute()
	if again {
		if err := restart.Self(); err != nil {
			fmt.Fprintf(os.Stderr, "tether: restart failed: %v\n", err)
			os.Exit(1)
		}
	}
	os.Exit(code)
}
