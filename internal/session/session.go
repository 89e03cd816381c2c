package session

import (
	"runtime"
	"sync"

	"github.com/seantiz/tally/internal/journal"
)

// Session owns one handle and closes it exactly once. A Session that becomes
// unreachable without Close releases its handle from a runtime cleanup and
// logs the leak.
type Session struct {
	m       *Manager
	h       Handle
	once    sync.Once
	cleanup runtime.Cleanup
}

// Open creates a session and wraps it in an owning Session.
func (m *Manager) Open() (*Session, error) {
	h, err := m.Create()
	if err != nil {
		return nil, err
	}
	s := &Session{m: m, h: h}
	s.cleanup = runtime.AddCleanup(s, func(h Handle) {
		if released, _ := m.Release(h); released {
			m.logger.Warn("session was not closed; released by cleanup", "handle", h)
		}
	}, h)
	return s, nil
}

// Handle returns the underlying handle.
func (s *Session) Handle() Handle { return s.h }

// Load parses data into the session's journal.
func (s *Session) Load(data []byte) error {
	return s.m.Load(s.h, data)
}

// LoadNamed parses data into the session's journal under a source name.
func (s *Session) LoadNamed(source string, data []byte) error {
	return s.m.LoadNamed(s.h, source, data)
}

// Journal returns a view bound to this session.
func (s *Session) Journal() *JournalView {
	return s.m.Journal(s.h)
}

// With runs fn with the session's journal.
func (s *Session) With(fn func(j *journal.Journal) error) error {
	return s.m.With(s.h, fn)
}

// Close closes the session. Further calls are no-ops.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.cleanup.Stop()
		err = s.m.Close(s.h)
	})
	return err
}
