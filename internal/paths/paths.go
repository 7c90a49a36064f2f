// Package paths provides path resolution utilities for tether's config, data
// and log files.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName is the directory name used under the user's config directory and
// for the project-local config directory (".tether").
const AppName = "tether"

// ProjectConfigFile is the project-local config path, relative to the
// working directory.
var ProjectConfigFile = filepath.Join("."+AppName, "config.yaml")

// ConfigDir returns ~/.config/tether, or an empty string if the home
// directory cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// UserConfigFile returns ~/.config/tether/config.yaml, or "" without a home directory.
func UserConfigFile() string {
	return join(ConfigDir(), "config.yaml")
}

// HistoryFile returns the default run history database path.
func HistoryFile() string {
	return join(ConfigDir(), "history.db")
}

// TracesFile returns the default file exporter output path.
func TracesFile() string {
	return join(ConfigDir(), "traces", "traces.jsonl")
}

// LogFile returns the default debug log path.
func LogFile() string {
	return join(ConfigDir(), "debug.log")
}

// ExpandHome replaces a leading "~" with the user's home directory.
// Paths without the prefix, or when home is unknown, are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func join(dir string, elem ...string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}
