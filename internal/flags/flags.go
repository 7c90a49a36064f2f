// Package flags provides feature flag support for optional shell behaviour.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"

	"github.com/zjrosen/tether/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagWatchSidecar enables the watcher that reports when the sidecar
	// executable changes on disk.
	FlagWatchSidecar = "watch-sidecar"

	// FlagLogTail shows the live application log beneath the sidecar output.
	FlagLogTail = "log-tail"
)

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags))
	return r
}

// Enabled returns true if the named flag is enabled.
// Unknown flags and a nil registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
