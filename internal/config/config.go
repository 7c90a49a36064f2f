// Package config provides configuration types and defaults for tether.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/paths"
)

// DefaultLineBuffer is the default maximum number of bytes delivered per
// sidecar output line; longer lines are split.
const DefaultLineBuffer = 1 << 20

// Config holds all configuration options for tether.
type Config struct {
	Sidecar SidecarConfig   `mapstructure:"sidecar" yaml:"sidecar"`
	Window  WindowConfig    `mapstructure:"window" yaml:"window"`
	Update  UpdateConfig    `mapstructure:"update" yaml:"update"`
	History HistoryConfig   `mapstructure:"history" yaml:"history"`
	Tracing TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Flags   map[string]bool `mapstructure:"flags" yaml:"flags,omitempty"`
}

// SidecarConfig describes the worker process.
type SidecarConfig struct {
	// Name is the base name of the sidecar binary. The platform triple
	// suffixed variant "<name>-<triple>" is preferred when present.
	Name string `mapstructure:"name" yaml:"name"`

	// Dir is the directory holding the binary. Empty searches next to the
	// tether executable and in its bin/ subdirectory.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	Args []string `mapstructure:"args" yaml:"args,omitempty"`

	// Env entries are KEY=VALUE pairs added to the inherited environment.
	Env []string `mapstructure:"env" yaml:"env,omitempty"`

	// LineBuffer is the maximum line length in bytes (0 = default).
	LineBuffer int `mapstructure:"line_buffer" yaml:"line_buffer"`
}

// WindowConfig holds the terminal window options.
type WindowConfig struct {
	Title         string `mapstructure:"title" yaml:"title"`
	MaxLines      int    `mapstructure:"max_lines" yaml:"max_lines"`             // sidecar lines kept in the scrollback
	MarkdownStyle string `mapstructure:"markdown_style" yaml:"markdown_style"` // "dark" (default) or "light"
}

// UpdateConfig holds the self-update options.
type UpdateConfig struct {
	// Endpoint is the URL of the JSON release manifest. Empty disables updates.
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	CheckOnStartup bool          `mapstructure:"check_on_startup" yaml:"check_on_startup"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path of the SQLite file. Default: ~/.config/tether/history.db
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/tether/traces/traces.jsonl
	FilePath string `mapstructure:"file_path" yaml:"file_path,omitempty"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// HistoryPath returns the configured history path with ~ expanded, or the default.
func (h HistoryConfig) HistoryPath() string {
	if h.Path != "" {
		return paths.ExpandHome(h.Path)
	}
	return paths.HistoryFile()
}

// TracesPath returns the configured trace file with ~ expanded, or the default.
func (t TracingConfig) TracesPath() string {
	if t.FilePath != "" {
		return paths.ExpandHome(t.FilePath)
	}
	return paths.TracesFile()
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Sidecar: SidecarConfig{
			Name:       "server",
			LineBuffer: DefaultLineBuffer,
		},
		Window: WindowConfig{
			Title:         "tether",
			MaxLines:      1000,
			MarkdownStyle: "dark",
		},
		Update: UpdateConfig{
			CheckOnStartup: false,
			CacheTTL:       time.Hour,
			Timeout:        30 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if err := ValidateSidecar(cfg.Sidecar); err != nil {
		return err
	}
	if err := ValidateWindow(cfg.Window); err != nil {
		return err
	}
	if err := ValidateUpdate(cfg.Update); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateSidecar checks sidecar configuration for errors.
func ValidateSidecar(s SidecarConfig) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sidecar.name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("sidecar.name must be a file name, not a path, got %q", s.Name)
	}
	if s.LineBuffer < 0 {
		return fmt.Errorf("sidecar.line_buffer must not be negative, got %d", s.LineBuffer)
	}
	for i, kv := range s.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("sidecar.env[%d] must be KEY=VALUE, got %q", i, kv)
		}
	}
	return nil
}

// ValidateWindow checks window configuration for errors.
func ValidateWindow(w WindowConfig) error {
	if w.MaxLines < 0 {
		return fmt.Errorf("window.max_lines must not be negative, got %d", w.MaxLines)
	}
	switch w.MarkdownStyle {
	case "", "dark", "light":
	default:
		return fmt.Errorf("window.markdown_style must be \"dark\" or \"light\", got %q", w.MarkdownStyle)
	}
	return nil
}

// ValidateUpdate checks update configuration for errors.
// An empty endpoint is valid and disables update checks.
func ValidateUpdate(u UpdateConfig) error {
	if u.CacheTTL < 0 {
		return fmt.Errorf("update.cache_ttl must not be negative, got %s", u.CacheTTL)
	}
	if u.Timeout < 0 {
		return fmt.Errorf("update.timeout must not be negative, got %s", u.Timeout)
	}
	if u.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(u.Endpoint)
	if err != nil {
		return fmt.Errorf("update.endpoint is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("update.endpoint must be an http or https URL, got %q", u.Endpoint)
	}
	if parsed.Host == "" {
		return fmt.Errorf("update.endpoint is missing a host, got %q", u.Endpoint)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Endpoint requirements only matter once tracing is on.
	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Tether Configuration

# Sidecar worker process, started once when tether starts and stopped on
# every exit path.
sidecar:
  name: server          # Binary name; "server-<target-triple>" is preferred when present
  # dir: ./bin          # Directory of the binary (default: next to the tether executable)
  # args: ["--port", "8080"]
  # env: ["RUST_LOG=info"]
  line_buffer: 1048576  # Longer output lines are split

# Terminal window
window:
  title: tether
  max_lines: 1000        # Sidecar lines kept in the scrollback
  markdown_style: dark   # Release notes style: "dark" (default) or "light"

# Self-update (disabled without an endpoint)
update:
  # endpoint: https://example.com/tether/latest.json
  check_on_startup: false
  cache_ttl: 1h
  timeout: 30s

# Run history (tether history)
history:
  enabled: true
  # path: ~/.config/tether/history.db

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/tether/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
# flags:
#   watch-sidecar: true   # Report when the sidecar binary changes on disk
#   log-tail: true        # Show the application log under the sidecar output
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
