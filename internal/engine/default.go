package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/session"
)

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine, building it on first use.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = NewEngine(
			session.NewManager(session.WithLogger(slog.Default())),
			command.NewBuiltinRegistry(),
			slog.Default(),
			WithFileSources(true),
		)
	})
	return defaultEngine
}

// RunCommand runs line through the process-wide engine's global entry point.
func RunCommand(line string) (string, error) {
	return Default().Run(context.Background(), line)
}
