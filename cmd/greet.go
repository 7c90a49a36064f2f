package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tether/internal/commands"
)

var greetCmd = &cobra.Command{
	Use:   "greet NAME",
	Short: "Run the greet command without starting the window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := commands.NewDispatcher()
		d.Register(commands.Greet, commands.GreetHandler())

		payload, err := json.Marshal(map[string]string{"name": args[0]})
		if err != nil {
			return err
		}
		result, err := d.Invoke(cmd.Context(), commands.Greet, string(payload))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
		return err
	},
}

func init() {
	rootCmd.AddCommand(greetCmd)
}
