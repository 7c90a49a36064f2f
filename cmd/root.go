package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/tether/internal/app"
	"github.com/zjrosen/tether/internal/config"
	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/paths"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	vp        *viper.Viper

	logCleanup       func()
	exitCode         int
	restartRequested bool
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "A terminal shell that supervises a sidecar process",
	Long: `tether starts a sidecar worker process, shows its output in a terminal
window and guarantees the worker is stopped on every way the application ends:
closing the window, an exit request, a restart, or the worker failing.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .tether/config.yaml, then ~/.config/tether/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also TETHER_DEBUG)")
}

func initConfig() {
	vp = viper.New()
	setDefaults(vp, config.Defaults())

	vp.SetEnvPrefix("TETHER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
			_ = config.WriteDefaultConfig(cfgFile)
		}
		vp.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .tether/config.yaml (current directory)
		// 2. ~/.config/tether/config.yaml (user config)
		if _, err := os.Stat(paths.ProjectConfigFile); err == nil {
			vp.SetConfigFile(paths.ProjectConfigFile)
		} else {
			vp.AddConfigPath(paths.ConfigDir())
			vp.SetConfigName("config")
			vp.SetConfigType("yaml")
		}
	}

	if err := vp.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .tether/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(paths.ProjectConfigFile); writeErr == nil {
				vp.SetConfigFile(paths.ProjectConfigFile)
				_ = vp.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Defaults()
	_ = vp.Unmarshal(&cfg)
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("sidecar.name", d.Sidecar.Name)
	v.SetDefault("sidecar.dir", d.Sidecar.Dir)
	v.SetDefault("sidecar.args", d.Sidecar.Args)
	v.SetDefault("sidecar.env", d.Sidecar.Env)
	v.SetDefault("sidecar.line_buffer", d.Sidecar.LineBuffer)
	v.SetDefault("window.title", d.Window.Title)
	v.SetDefault("window.max_lines", d.Window.MaxLines)
	v.SetDefault("window.markdown_style", d.Window.MarkdownStyle)
	v.SetDefault("update.endpoint", d.Update.Endpoint)
	v.SetDefault("update.check_on_startup", d.Update.CheckOnStartup)
	v.SetDefault("update.cache_ttl", d.Update.CacheTTL)
	v.SetDefault("update.timeout", d.Update.Timeout)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// setup validates the configuration and opens the log file.
func setup(_ *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logPath := os.Getenv("TETHER_LOG")
	if logPath == "" {
		logPath = paths.LogFile()
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup

	if debugFlag || os.Getenv("TETHER_DEBUG") != "" {
		log.SetMinLevel(log.LevelDebug)
	}
	log.Debug(log.CatConfig, "Configuration loaded", "file", vp.ConfigFileUsed(), "log", logPath)
	return nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	log.Info(log.CatLifecycle, "tether starting", "version", version)

	a := app.New(app.Options{Config: cfg, Version: version})
	res := a.Run(cmd.Context())
	if res.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "tether: failed to start sidecar: %v\n", res.Err)
	}
	exitCode = res.Code
	restartRequested = res.Restart
	return nil
}

// configPath returns the config file in use, or the project default.
func configPath() string {
	if vp != nil && vp.ConfigFileUsed() != "" {
		return vp.ConfigFileUsed()
	}
	return filepath.Clean(paths.ProjectConfigFile)
}

// Execute runs the root command. It returns the process exit code and
// whether the application asked to be restarted. Logging is closed before
// it returns.
func Execute() (code int, restart bool) {
	exitCode, restartRequested = 0, false
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		return 1, false
	}
	return exitCode, restartRequested
}

func closeLog() {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

// SetVersion sets the version string (called from main with ldflags).
// display is shown by --version; v is compared against update manifests.
func SetVersion(v, display string) {
	version = v
	rootCmd.Version = display
}
