package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tether/internal/ui/styles"
	"github.com/zjrosen/tether/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and install tether updates",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the update endpoint for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := newUpdater()
		if err != nil {
			return err
		}
		meta, err := u.Check(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if meta == nil {
			_, err := fmt.Fprintf(out, "tether %s is up to date\n", version)
			return err
		}
		_, err = fmt.Fprintf(out, "Update available: %s (current %s)\n", meta.Version, meta.CurrentVersion)
		if err == nil && meta.Notes != "" {
			_, err = fmt.Fprintf(out, "\n%s\n", meta.Notes)
		}
		return err
	},
}

var updateInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the newest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u, err := newUpdater()
		if err != nil {
			return err
		}
		meta, err := u.Check(cmd.Context())
		if err != nil {
			return err
		}
		if meta == nil {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tether %s is up to date\n", version)
			return err
		}

		err = u.Install(cmd.Context(), progressPrinter(cmd.ErrOrStderr()))
		if errors.Is(err, updater.ErrNoUpdate) {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tether %s is up to date\n", version)
			return err
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s. Restart tether to use it.\n", meta.Version)
		return err
	},
}

func init() {
	updateCmd.AddCommand(updateCheckCmd, updateInstallCmd)
	rootCmd.AddCommand(updateCmd)
}

func newUpdater() (*updater.Updater, error) {
	if cfg.Update.Endpoint == "" {
		return nil, fmt.Errorf("update.endpoint is not configured")
	}
	target, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	checker := updater.NewChecker(updater.Options{
		Endpoint:       cfg.Update.Endpoint,
		CurrentVersion: version,
		Timeout:        cfg.Update.Timeout,
	})
	return updater.New(checker, updater.ReplaceExecutable{Target: target}), nil
}

// progressPrinter reports download progress on w, one line per event kind.
func progressPrinter(w io.Writer) func(updater.DownloadEvent) {
	var total, done int64
	return func(ev updater.DownloadEvent) {
		switch ev.Event {
		case updater.DownloadStarted:
			if ev.ContentLength != nil {
				total = *ev.ContentLength
				_, _ = fmt.Fprintf(w, "Downloading %s\n", styles.FormatBytes(total))
			} else {
				_, _ = fmt.Fprintln(w, "Downloading")
			}
		case updater.DownloadProgress:
			done += int64(ev.ChunkLength)
		case updater.DownloadFinished:
			_, _ = fmt.Fprintf(w, "Downloaded %s\n", styles.FormatBytes(done))
		}
	}
}
