package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/tally/internal/journal"
	"github.com/seantiz/tally/internal/model"
)

// instance is one engine instance: a journal plus its bookkeeping.
// All fields other than id, handle and createdAt are guarded by mu.
type instance struct {
	mu        sync.Mutex
	id        string
	handle    Handle
	createdAt time.Time

	journal *journal.Journal
	loads   int
	closed  bool
}

type slot struct {
	gen  uint32
	inst *instance
}

// Info describes a live session.
type Info struct {
	ID           string    `json:"id"`
	Handle       Handle    `json:"handle"`
	Loads        int       `json:"loads"`
	Transactions int       `json:"transactions"`
	Sources      []string  `json:"sources"`
	CreatedAt    time.Time `json:"created_at"`
}

// Manager is the session table. It is safe for concurrent use; distinct
// sessions never share a lock.
type Manager struct {
	mu    sync.RWMutex
	slots []slot
	free  []int
	byID  map[string]Handle

	logger          *slog.Logger
	maxSessions     int
	maxJournalBytes int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *Manager) { m.maxSessions = n }
}

// WithMaxJournalBytes caps the size of a single Load buffer. Zero means unlimited.
func WithMaxJournalBytes(n int64) Option {
	return func(m *Manager) { m.maxJournalBytes = n }
}

// NewManager creates an empty session table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byID:   make(map[string]Handle),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates a fresh, empty session and returns its handle.
func (m *Manager) Create() (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.byID) >= m.maxSessions {
		return 0, fmt.Errorf("%w (max %d)", ErrSessionLimit, m.maxSessions)
	}

	var idx int
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		if len(m.slots) == math.MaxInt32 {
			return 0, fmt.Errorf("%w (handle table full)", ErrSessionLimit)
		}
		m.slots = append(m.slots, slot{gen: 1})
		idx = len(m.slots) - 1
	}

	h := makeHandle(idx, m.slots[idx].gen)
	inst := &instance{
		id:        model.NewID(),
		handle:    h,
		createdAt: time.Now().UTC(),
		journal:   journal.New(),
	}
	m.slots[idx].inst = inst
	m.byID[inst.id] = h
	sessionsActive.Inc()

	m.logger.Debug("session created", "session", inst.id, "handle", h)
	return h, nil
}

// lookup resolves h to its live instance. The caller must hold m.mu.
func (m *Manager) lookup(h Handle) (*instance, error) {
	idx := h.slot()
	if idx < 0 || idx >= len(m.slots) {
		return nil, ErrInvalidHandle
	}
	s := m.slots[idx]
	switch gen := h.generation(); {
	case gen == 0 || gen > s.gen:
		return nil, ErrInvalidHandle
	case gen < s.gen || s.inst == nil:
		return nil, ErrUseAfterClose
	}
	return s.inst, nil
}

// acquire resolves h and locks its instance. The returned instance is open.
func (m *Manager) acquire(h Handle) (*instance, error) {
	m.mu.RLock()
	inst, err := m.lookup(h)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("handle %s: %w", h, err)
	}

	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return nil, fmt.Errorf("handle %s: %w", h, ErrUseAfterClose)
	}
	return inst, nil
}

// Load parses data and appends it to the session's journal.
func (m *Manager) Load(h Handle, data []byte) error {
	return m.LoadNamed(h, "", data)
}

// LoadNamed is Load with a source name used in parse error positions.
// Ingestion is all-or-nothing: on a parse error the journal is unchanged.
func (m *Manager) LoadNamed(h Handle, source string, data []byte) error {
	inst, err := m.acquire(h)
	if err != nil {
		return err
	}
	defer inst.mu.Unlock()

	if m.maxJournalBytes > 0 && int64(len(data)) > m.maxJournalBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrJournalTooLarge, len(data), m.maxJournalBytes)
	}

	start := time.Now()
	next, err := inst.journal.Extend(source, data)
	sessionLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		sessionLoadsTotal.WithLabelValues("error").Inc()
		m.logger.Info("journal load rejected", "session", inst.id, "error", err)
		return err
	}
	sessionLoadsTotal.WithLabelValues("ok").Inc()

	added := len(next.Transactions) - len(inst.journal.Transactions)
	inst.journal = next
	inst.loads++

	m.logger.Debug("journal loaded", "session", inst.id, "transactions", added, "bytes", len(data))
	return nil
}

// With runs fn with the session's journal while holding the session lock.
// The journal is read-only.
func (m *Manager) With(h Handle, fn func(j *journal.Journal) error) error {
	inst, err := m.acquire(h)
	if err != nil {
		return err
	}
	defer inst.mu.Unlock()
	return fn(inst.journal)
}

// Info reports the current state of a live session.
func (m *Manager) Info(h Handle) (Info, error) {
	inst, err := m.acquire(h)
	if err != nil {
		return Info{}, err
	}
	defer inst.mu.Unlock()
	return Info{
		ID:           inst.id,
		Handle:       inst.handle,
		Loads:        inst.loads,
		Transactions: len(inst.journal.Transactions),
		Sources:      append([]string(nil), inst.journal.Sources...),
		CreatedAt:    inst.createdAt,
	}, nil
}

// Lookup returns the handle of the live session with the given record ID.
func (m *Manager) Lookup(id string) (Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byID[id]
	if !ok {
		return 0, fmt.Errorf("session %q: %w", id, ErrInvalidHandle)
	}
	return h, nil
}

// Close closes the session. Closing the zero handle or an already closed
// session is a no-op.
func (m *Manager) Close(h Handle) error {
	_, err := m.Release(h)
	return err
}

// Release closes the session and reports whether this call closed it.
func (m *Manager) Release(h Handle) (bool, error) {
	if h == 0 {
		return false, nil
	}

	m.mu.Lock()
	inst, err := m.lookup(h)
	if errors.Is(err, ErrUseAfterClose) {
		m.mu.Unlock()
		return false, nil
	}
	if err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("handle %s: %w", h, err)
	}

	idx := h.slot()
	m.slots[idx].inst = nil
	m.slots[idx].gen++
	// A slot whose generation would wrap is retired rather than reused.
	if m.slots[idx].gen != math.MaxUint32 {
		m.free = append(m.free, idx)
	}
	delete(m.byID, inst.id)
	m.mu.Unlock()

	inst.mu.Lock()
	inst.closed = true
	inst.journal = nil
	inst.mu.Unlock()

	sessionsActive.Dec()
	m.logger.Debug("session closed", "session", inst.id, "handle", h)
	return true, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Handles returns the handles of all live sessions in ascending order.
func (m *Manager) Handles() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hs := make([]Handle, 0, len(m.byID))
	for _, h := range m.byID {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
	for _, h := range m.Handles() {
		if err := m.Close(h); err != nil {
			m.logger.Error("failed to close session", "handle", h, "error", err)
		}
	}
}

// Journal returns a view of the session's journal that stays bound to the
// handle: it fails with ErrUseAfterClose once the session is closed.
func (m *Manager) Journal(h Handle) *JournalView {
	return &JournalView{m: m, h: h}
}

// JournalView is a handle-bound, read-only window onto a session's journal.
type JournalView struct {
	m *Manager
	h Handle
}

// Snapshot returns the journal as of now. Later loads do not affect it.
func (v *JournalView) Snapshot() (*journal.Journal, error) {
	var snap *journal.Journal
	err := v.m.With(v.h, func(j *journal.Journal) error {
		snap = j
		return nil
	})
	return snap, err
}

// Accounts returns the accounts currently known to the session.
func (v *JournalView) Accounts() ([]string, error) {
	j, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	return j.Accounts(), nil
}

// Transactions returns the number of transactions currently in the session.
func (v *JournalView) Transactions() (int, error) {
	j, err := v.Snapshot()
	if err != nil {
		return 0, err
	}
	return len(j.Transactions), nil
}
