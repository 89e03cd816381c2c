package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/tally/internal/api"
	"github.com/seantiz/tally/internal/bridge"
	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/engine"
	"github.com/seantiz/tally/internal/session"
	"github.com/seantiz/tally/internal/store"
)

var (
	serveListenAddr string
	serveBridgeAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over HTTP and, optionally, the bridge",
	Long: `Serve the session API over HTTP. When a bridge address is configured the
framed bridge protocol is served alongside it. If LEDGER_FILE is set the file
is loaded as the active journal, and with TALLY_WATCH it is reloaded on change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "HTTP listen address; overrides TALLY_LISTEN_ADDR")
	serveCmd.Flags().StringVar(&serveBridgeAddr, "bridge", "", "bridge address (unix://, tcp:// or vsock://); overrides TALLY_BRIDGE_ADDR")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}
	if serveBridgeAddr != "" {
		cfg.BridgeAddr = serveBridgeAddr
	}

	logger := newLogger(os.Stdout)
	logger.Info("tally: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"bridge_addr", cfg.BridgeAddr,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.NewEngine(
		session.NewManager(
			session.WithLogger(logger),
			session.WithMaxSessions(cfg.MaxSessions),
			session.WithMaxJournalBytes(cfg.MaxJournalBytes),
		),
		command.NewBuiltinRegistry(),
		logger,
		engine.WithStore(db),
	)
	defer eng.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startActive(ctx, eng, logger); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if cfg.BridgeAddr != "" {
		l, err := bridge.Listen(cfg.BridgeAddr)
		if err != nil {
			return err
		}
		br := bridge.NewServer(eng, logger)
		defer br.Close()
		go func() {
			if err := br.Serve(l); err != nil {
				errCh <- fmt.Errorf("bridge: %w", err)
			}
		}()
	}

	srv := api.NewServer(cfg.ListenAddr, db, eng, logger, api.WithMaxJournalBytes(cfg.MaxJournalBytes))
	go func() {
		errCh <- srv.Run(ctx)
	}()

	select {
	case err := <-errCh:
		stop()
		return err
	case <-ctx.Done():
		return <-errCh
	}
}

// startActive loads LEDGER_FILE as the active journal and, when enabled,
// starts watching it for changes until ctx ends.
func startActive(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	if cfg.LedgerFile == "" {
		return nil
	}
	if err := eng.LoadActiveFile(cfg.LedgerFile); err != nil {
		return fmt.Errorf("load %s: %w", cfg.LedgerFile, err)
	}
	if !cfg.Watch {
		return nil
	}
	go func() {
		err := eng.WatchActive(ctx, cfg.LedgerFile, engine.DefaultDebounce)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("journal watcher stopped", "path", cfg.LedgerFile, "error", err)
		}
	}()
	return nil
}
