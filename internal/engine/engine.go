package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/journal"
	"github.com/seantiz/tally/internal/model"
	"github.com/seantiz/tally/internal/session"
	"github.com/seantiz/tally/internal/store"
)

// Engine executes command lines against sessions. Session-scoped calls
// (Execute) run concurrently, serialised per session; the global entry point
// (Run) is serialised process-wide.
type Engine struct {
	sessions *session.Manager
	registry *command.Registry
	store    store.Store
	logger   *slog.Logger
	broker   *EventBroker

	runMu       sync.Mutex
	fileSources bool

	activeMu     sync.RWMutex
	active       session.Handle
	activeSource string
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore records sessions and executions in s.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithFileSources lets Run read the -f journal files named on a command line
// from the local filesystem. Without it Run only uses the active session.
func WithFileSources(enabled bool) Option {
	return func(e *Engine) { e.fileSources = enabled }
}

// NewEngine creates a new command execution engine.
func NewEngine(sessions *session.Manager, reg *command.Registry, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		registry: reg,
		logger:   logger,
	}
	e.broker = NewEventBroker(func(id string) bool {
		_, err := sessions.Lookup(id)
		return err == nil
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Sessions returns the session table the engine runs against.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Registry returns the command registry.
func (e *Engine) Registry() *command.Registry {
	return e.registry
}

// CreateSession opens a new session and records it.
func (e *Engine) CreateSession(ctx context.Context) (session.Info, error) {
	h, err := e.sessions.Create()
	if err != nil {
		return session.Info{}, err
	}
	info, err := e.sessions.Info(h)
	if err != nil {
		return session.Info{}, err
	}

	if e.store != nil {
		rec := &model.Session{
			ID:        info.ID,
			Handle:    uint64(h),
			Status:    model.SessionActive,
			CreatedAt: info.CreatedAt,
		}
		if err := e.store.CreateSession(ctx, rec); err != nil {
			e.sessions.Close(h)
			return session.Info{}, fmt.Errorf("record session: %w", err)
		}
	}

	e.logger.Info("session created", "session", info.ID, "handle", h)
	return info, nil
}

// LoadSession parses data into the session's journal. source names the data
// in parse errors and may be empty.
func (e *Engine) LoadSession(ctx context.Context, h session.Handle, source string, data []byte) error {
	if err := e.sessions.LoadNamed(h, source, data); err != nil {
		return err
	}

	info, err := e.sessions.Info(h)
	if err != nil {
		// Closed concurrently; the load itself succeeded.
		return nil
	}
	if e.store != nil {
		if err := e.store.RecordLoad(ctx, info.ID, info.Transactions); err != nil {
			e.logger.Error("failed to record load", "session", info.ID, "error", err)
		}
	}
	e.broker.Publish(Event{
		Type:         EventLoaded,
		SessionID:    info.ID,
		Transactions: info.Transactions,
		Time:         time.Now().UTC(),
	})
	return nil
}

// CloseSession closes the session. Closing an already closed session is a no-op.
func (e *Engine) CloseSession(ctx context.Context, h session.Handle) error {
	info, infoErr := e.sessions.Info(h)
	released, err := e.sessions.Release(h)
	if err != nil {
		return err
	}
	if !released || infoErr != nil {
		return nil
	}

	if e.store != nil {
		err := e.store.UpdateSessionStatus(ctx, info.ID, model.SessionClosed)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.Error("failed to record session close", "session", info.ID, "error", err)
		}
	}
	e.broker.Publish(Event{Type: EventClosed, SessionID: info.ID, Time: time.Now().UTC()})
	e.broker.Close(info.ID)

	e.logger.Info("session closed", "session", info.ID, "handle", h)
	return nil
}

// Execute runs one command line against the session. Journal sources cannot
// be named on the line; load them with LoadSession instead.
func (e *Engine) Execute(ctx context.Context, h session.Handle, line string) (string, error) {
	info, err := e.sessions.Info(h)
	if err != nil {
		return "", err
	}
	inv, err := command.ParseLine(line)
	if err != nil {
		return "", err
	}
	if len(inv.Files) > 0 {
		return "", fmt.Errorf("%w: -f is not accepted for session commands", command.ErrInvalidArguments)
	}
	return e.execute(ctx, h, info.ID, line, inv)
}

// Run is the global entry point. With -f sources it runs against a session
// that lives only for this call; otherwise it runs against the active session.
// -f is rejected unless the engine was built WithFileSources.
func (e *Engine) Run(ctx context.Context, line string) (string, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	inv, err := command.ParseLine(line)
	if err != nil {
		return "", err
	}

	if len(inv.Files) == 0 {
		h := e.Active()
		if h == 0 {
			return "", fmt.Errorf("%w: no journal loaded; pass -f FILE", command.ErrInvalidArguments)
		}
		return e.execute(ctx, h, "", line, inv)
	}

	if !e.fileSources {
		return "", fmt.Errorf("%w: -f is not accepted here; set LEDGER_FILE on the server", command.ErrInvalidArguments)
	}

	s, err := e.sessions.Open()
	if err != nil {
		return "", err
	}
	defer s.Close()

	for _, path := range inv.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", command.ErrInvalidArguments, err)
		}
		if err := s.LoadNamed(path, data); err != nil {
			return "", err
		}
	}
	return e.execute(ctx, s.Handle(), "", line, inv)
}

func (e *Engine) execute(ctx context.Context, h session.Handle, sessionID, line string, inv command.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if inv.Name == "" {
		return "", fmt.Errorf("%w: empty command line", command.ErrInvalidArguments)
	}

	start := time.Now()
	name := "unknown"
	cmd, err := e.registry.Resolve(inv.Name)

	var out string
	if err == nil {
		name = cmd.Info().Name
		err = e.sessions.With(h, func(j *journal.Journal) error {
			var runErr error
			out, runErr = cmd.Run(ctx, command.Request{Journal: j, Args: inv.Args})
			return runErr
		})
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		out = ""
	}
	commandsTotal.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if errors.Is(err, session.ErrInvalidHandle) || errors.Is(err, session.ErrUseAfterClose) {
		return "", err
	}
	e.record(ctx, sessionID, line, out, err, elapsed)

	if err != nil {
		e.logger.Info("command failed", "session", sessionID, "command", name, "error", err)
		return "", err
	}
	e.logger.Debug("command executed", "session", sessionID, "command", name, "duration_ms", elapsed.Milliseconds())
	return out, nil
}

// record persists the execution and notifies subscribers.
func (e *Engine) record(ctx context.Context, sessionID, line, out string, runErr error, elapsed time.Duration) {
	exec := &model.Execution{
		ID:         model.NewID(),
		SessionID:  sessionID,
		Command:    line,
		Status:     model.ExecutionSucceeded,
		Output:     out,
		DurationMS: int(elapsed.Milliseconds()),
		CreatedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		exec.Status = model.ExecutionFailed
		exec.Error = runErr.Error()
	}

	if e.store != nil {
		if err := e.store.CreateExecution(context.WithoutCancel(ctx), exec); err != nil {
			e.logger.Error("failed to record execution", "session", sessionID, "error", err)
		}
	}
	if sessionID != "" {
		e.broker.Publish(Event{
			Type:      EventExecuted,
			SessionID: sessionID,
			Command:   line,
			Status:    exec.Status,
			Error:     exec.Error,
			Time:      exec.CreatedAt,
		})
	}
}

// Active returns the handle of the active session, or 0 when none is set.
func (e *Engine) Active() session.Handle {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return e.active
}

// SetActive makes h the session used by Run and returns the previous one.
// The caller owns the returned handle.
func (e *Engine) SetActive(h session.Handle) session.Handle {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	prev := e.active
	e.active = h
	e.activeSource = ""
	return prev
}

// LoadActiveFile loads path into a fresh session and swaps it in as the
// active session. On failure the current active session is left in place.
// It waits for any in-flight Run so the swap never closes a journal in use.
func (e *Engine) LoadActiveFile(path string) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	h, err := e.sessions.Create()
	if err != nil {
		return err
	}
	if err := e.sessions.LoadNamed(h, path, data); err != nil {
		e.sessions.Close(h)
		return err
	}

	e.activeMu.Lock()
	prev := e.active
	e.active = h
	e.activeSource = path
	e.activeMu.Unlock()

	if err := e.sessions.Close(prev); err != nil {
		e.logger.Error("failed to close previous active session", "handle", prev, "error", err)
	}

	n, _ := e.sessions.Journal(h).Transactions()
	e.logger.Info("active journal loaded", "path", path, "transactions", n)
	return nil
}

// ReloadActive reloads the file the active session was loaded from.
func (e *Engine) ReloadActive() error {
	e.activeMu.RLock()
	path := e.activeSource
	e.activeMu.RUnlock()
	if path == "" {
		return errors.New("active session was not loaded from a file")
	}
	return e.LoadActiveFile(path)
}

// Shutdown closes every session the engine knows about.
func (e *Engine) Shutdown(ctx context.Context) {
	for _, h := range e.sessions.Handles() {
		if err := e.CloseSession(ctx, h); err != nil {
			e.logger.Error("failed to close session", "handle", h, "error", err)
		}
	}
	e.SetActive(0)
}
