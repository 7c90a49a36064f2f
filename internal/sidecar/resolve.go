package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrExecutableNotFound is returned when no candidate sidecar binary exists.
var ErrExecutableNotFound = errors.New("sidecar: executable not found")

// TargetTriple returns the platform triple used to name per-platform sidecar
// binaries, e.g. "x86_64-unknown-linux-gnu" or "aarch64-apple-darwin".
func TargetTriple(goos, goarch string) string {
	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	case "arm":
		arch = "armv7"
	case "riscv64":
		arch = "riscv64gc"
	}

	switch goos {
	case "linux":
		if goarch == "arm" {
			return arch + "-unknown-linux-gnueabihf"
		}
		return arch + "-unknown-linux-gnu"
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-unknown-" + goos
	}
}

// CandidateNames lists the file names tried for a sidecar called name, most
// specific first: "<name>-<triple><ext>" then "<name><ext>".
func CandidateNames(name, goos, goarch string) []string {
	ext := ""
	if goos == "windows" {
		ext = ".exe"
	}
	base := strings.TrimSuffix(name, ext)
	return []string{
		base + "-" + TargetTriple(goos, goarch) + ext,
		base + ext,
	}
}

// Resolve finds the sidecar binary called name in dirs, in order.
// Directories and non-regular files are skipped.
func Resolve(dirs []string, name string) (string, error) {
	return resolveFor(dirs, name, runtime.GOOS, runtime.GOARCH)
}

func resolveFor(dirs []string, name, goos, goarch string) (string, error) {
	if name == "" {
		return "", errors.New("sidecar: name is required")
	}

	var tried []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, candidate := range CandidateNames(name, goos, goarch) {
			path := filepath.Join(dir, candidate)
			tried = append(tried, path)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s (tried %s)", ErrExecutableNotFound, name, strings.Join(tried, ", "))
}

// DefaultDirs returns the directories searched when none are configured:
// the directory of the running executable and its bin/ subdirectory.
func DefaultDirs() []string {
	exe, err := os.Executable()
	if err != nil {
		return []string{"bin"}
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	return []string{dir, filepath.Join(dir, "bin")}
}
