package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/tether/internal/history"
)

var (
	historyLimit int
	historyYAML  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sidecar runs",
	Long: `Show recent sidecar runs from the run history: when each sidecar was
started, which binary it was, and why and how it stopped.

Examples:
  tether history
  tether history --limit 5
  tether history --yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.History.Enabled {
			return fmt.Errorf("run history is disabled (history.enabled: false)")
		}
		store, err := history.Open(cfg.History.HistoryPath())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyYAML {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			_, err := fmt.Fprintln(out, "No runs recorded yet.")
			return err
		}
		_, err = fmt.Fprintln(out, runsTable(runs))
		return err
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().BoolVar(&historyYAML, "yaml", false, "print runs as YAML")
	rootCmd.AddCommand(historyCmd)
}

func runsTable(runs []history.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STARTED", "DURATION", "PID", "REASON", "EXIT")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(r),
			pidString(r.PID),
			reasonString(r),
			exitString(r),
		)
	}
	return t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(r history.Run) string {
	if r.Running() {
		return "running"
	}
	return r.Duration().Round(time.Millisecond).String()
}

func pidString(pid int) string {
	if pid == 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func reasonString(r history.Run) string {
	switch {
	case r.Reason == "":
		return "-"
	case r.Error != "":
		return r.Reason + ": " + r.Error
	default:
		return r.Reason
	}
}

func exitString(r history.Run) string {
	switch {
	case r.Signal != "":
		return r.Signal
	case r.ExitCode != nil:
		return strconv.Itoa(*r.ExitCode)
	default:
		return "-"
	}
}
