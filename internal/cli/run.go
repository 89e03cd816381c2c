package cli

import (
	"context"
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/seantiz/tally/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run [-f FILE]... COMMAND [ARGS]...",
	Short: "Run one report through the global command entry point",
	Long: `Run one report line, for example:

  tally run -f main.ledger balance --depth 2 Assets

Without -f the journal named by LEDGER_FILE is used.`,
	DisableFlagParsing: true,
	Args:               cobra.MinimumNArgs(1),
	RunE:               runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
		return cmd.Help()
	}
	if args[0] == "--" {
		args = args[1:]
	}

	eng := engine.Default()
	if cfg.LedgerFile != "" && eng.Active() == 0 {
		if err := eng.LoadActiveFile(cfg.LedgerFile); err != nil {
			return fmt.Errorf("load %s: %w", cfg.LedgerFile, err)
		}
	}

	out, err := eng.Run(context.Background(), shellquote.Join(args...))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
