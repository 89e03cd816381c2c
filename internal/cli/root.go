// Package cli implements the tally command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/seantiz/tally/internal/config"
)

const version = "0.1.0"

var (
	logLevel string
	dbPath   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "tally - plain-text ledger reports as a service",
	Long: `tally parses plain-text double-entry journals and runs reports
(balance, register, print, ...) against them. Journals live in isolated
sessions reachable over HTTP, a framed socket bridge, or the command line.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
			loaded.Level = logLevel
			loaded.LogLevel = config.ParseLogLevel(logLevel)
		}
		if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
			loaded.DBPath = dbPath
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error); overrides TALLY_LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path; overrides TALLY_DB_PATH")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(w io.Writer) *slog.Logger {
	return config.NewLogger(w, cfg.LogLevel)
}
