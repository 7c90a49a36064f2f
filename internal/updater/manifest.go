// Package updater checks a release manifest for a newer tether version and
// installs it, reporting download progress as events.
package updater

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"

	"github.com/zjrosen/tether/internal/sidecar"
)

// ErrNoUpdate is returned by Install when the running version is current.
var ErrNoUpdate = errors.New("updater: no update available")

// ErrInvalidManifest is returned for manifests missing required fields.
var ErrInvalidManifest = errors.New("updater: invalid manifest")

// Release is a parsed manifest.
type Release struct {
	Version string
	Notes   string
	PubDate string
	URL     string
}

// Metadata describes an available update.
type Metadata struct {
	Version        string `json:"version"`
	CurrentVersion string `json:"currentVersion"`
	Notes          string `json:"notes,omitempty"`
	PubDate        string `json:"pubDate,omitempty"`
	URL            string `json:"url,omitempty"`
}

// PlatformKey returns the manifest key for a platform, e.g. "linux-x86_64"
// or "darwin-aarch64".
func PlatformKey(goos, goarch string) string {
	arch, _, _ := strings.Cut(sidecar.TargetTriple(goos, goarch), "-")
	return goos + "-" + arch
}

// ParseManifest reads a release manifest:
//
//	{"version": "1.2.0", "notes": "...", "pub_date": "...", "url": "..."}
//
// A per-platform download under "platforms.<key>.url" takes precedence over
// the top-level "url".
func ParseManifest(data []byte, platform string) (Release, error) {
	if !gjson.ValidBytes(data) {
		return Release{}, fmt.Errorf("%w: not JSON", ErrInvalidManifest)
	}
	doc := gjson.ParseBytes(data)

	version := doc.Get("version").String()
	if version == "" {
		return Release{}, fmt.Errorf("%w: missing version", ErrInvalidManifest)
	}
	if !semver.IsValid(canonical(version)) {
		return Release{}, fmt.Errorf("%w: version %q is not semver", ErrInvalidManifest, version)
	}

	rel := Release{
		Version: version,
		Notes:   doc.Get("notes").String(),
		PubDate: doc.Get("pub_date").String(),
		URL:     doc.Get("url").String(),
	}
	if platform != "" {
		if u := doc.Get("platforms." + gjson.Escape(platform) + ".url"); u.Exists() {
			rel.URL = u.String()
		}
	}
	return rel, nil
}

// Newer reports whether candidate is a higher version than current.
// The leading "v" is optional on both. An invalid current version is
// treated as older than any valid candidate.
func Newer(candidate, current string) bool {
	c := canonical(candidate)
	if !semver.IsValid(c) {
		return false
	}
	return semver.Compare(c, canonical(current)) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return "v" + strings.TrimPrefix(v, "v")
}
