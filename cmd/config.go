package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/tether/internal/config"
	"github.com/zjrosen/tether/internal/flags"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "# %s\n", configPath()); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "List or change feature flags",
}

var flagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		state := flags.New(cfg.Flags).All()
		for _, name := range []string{flags.FlagWatchSidecar, flags.FlagLogTail} {
			if _, ok := state[name]; !ok {
				state[name] = false
			}
		}
		names := make([]string, 0, len(state))
		for name := range state {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%t\n", name, state[name]); err != nil {
				return err
			}
		}
		return nil
	},
}

var flagSetCmd = &cobra.Command{
	Use:   "set NAME true|false",
	Short: "Enable or disable a feature flag in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("flag value must be true or false, got %q", args[1])
		}
		path := configPath()
		if err := config.SaveFlag(path, args[0], enabled); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "flags.%s = %t (%s)\n", args[0], enabled, path)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	flagCmd.AddCommand(flagListCmd, flagSetCmd)
	rootCmd.AddCommand(configCmd, flagCmd)
}
