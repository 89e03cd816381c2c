package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/tally/internal/bridge"
	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/engine"
	"github.com/seantiz/tally/internal/session"
)

var bridgeAddr string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve sessions over the framed bridge protocol only",
	Long: `Serve the framed request/response bridge on a unix, tcp or vsock listener.
Sessions are held in memory and closed when the connection that created them ends.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeAddr, "addr", "", "listen address (unix://PATH, tcp://HOST:PORT or vsock://PORT); overrides TALLY_BRIDGE_ADDR")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	addr := cfg.BridgeAddr
	if bridgeAddr != "" {
		addr = bridgeAddr
	}
	if addr == "" {
		return errors.New("no bridge address: pass --addr or set TALLY_BRIDGE_ADDR")
	}

	logger := newLogger(os.Stderr)
	eng := engine.NewEngine(
		session.NewManager(
			session.WithLogger(logger),
			session.WithMaxSessions(cfg.MaxSessions),
			session.WithMaxJournalBytes(cfg.MaxJournalBytes),
		),
		command.NewBuiltinRegistry(),
		logger,
	)
	defer eng.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startActive(ctx, eng, logger); err != nil {
		return err
	}

	l, err := bridge.Listen(addr)
	if err != nil {
		return err
	}
	srv := bridge.NewServer(eng, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx).Error())
		srv.Close()
		return <-errCh
	}
}
