package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string     `env:"TALLY_LISTEN_ADDR" envDefault:":8080"`
	DBPath     string     `env:"TALLY_DB_PATH" envDefault:"tally.db"`
	LogLevel   slog.Level `env:"-"`
	Level      string     `env:"TALLY_LOG_LEVEL" envDefault:"info"`

	// BridgeAddr is the bridge listener address (unix://, tcp:// or vsock://).
	// Empty disables the bridge in serve.
	BridgeAddr string `env:"TALLY_BRIDGE_ADDR"`

	// MaxSessions caps live sessions; zero means unlimited.
	MaxSessions     int   `env:"TALLY_MAX_SESSIONS" envDefault:"0"`
	MaxJournalBytes int64 `env:"TALLY_MAX_JOURNAL_BYTES" envDefault:"16777216"`

	// LedgerFile is loaded as the active journal at startup when set.
	LedgerFile string `env:"LEDGER_FILE"`
	Watch      bool   `env:"TALLY_WATCH" envDefault:"false"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxSessions < 0 {
		return Config{}, fmt.Errorf("TALLY_MAX_SESSIONS must not be negative, got %d", cfg.MaxSessions)
	}
	if cfg.MaxJournalBytes < 0 {
		return Config{}, fmt.Errorf("TALLY_MAX_JOURNAL_BYTES must not be negative, got %d", cfg.MaxJournalBytes)
	}
	cfg.LogLevel = ParseLogLevel(cfg.Level)
	return cfg, nil
}

// ParseLogLevel maps a level name to a slog level. Unknown names map to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
