package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/tally/internal/command"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the available reports and their aliases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, info := range command.NewBuiltinRegistry().List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, strings.Join(info.Aliases, ", "), info.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}
