package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/tally/internal/journal"
)

const validJournal = `2020-12-17 * Valid transaction
    Assets:Testing  $1000
    Equity
`

const unbalancedJournal = `2020-12-18 Broken
    Assets:Testing  $10
    Equity  $-5
`

func transactions(t *testing.T, m *Manager, h Handle) int {
	t.Helper()
	n, err := m.Journal(h).Transactions()
	require.NoError(t, err)
	return n
}

func TestCreateLoadClose(t *testing.T) {
	m := NewManager()

	h, err := m.Create()
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Load(h, []byte(validJournal)))
	assert.Equal(t, 1, transactions(t, m, h))

	info, err := m.Info(h)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Loads)
	assert.Equal(t, h, info.Handle)
	assert.NotEmpty(t, info.ID)

	require.NoError(t, m.Close(h))
	assert.Equal(t, 0, m.Len())
}

func TestLoadParseErrorLeavesJournalUnchanged(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, m.Load(h, []byte(validJournal)))

	err = m.Load(h, []byte(unbalancedJournal))
	require.ErrorIs(t, err, journal.ErrParse)
	assert.Equal(t, 1, transactions(t, m, h))

	// The session still accepts a later valid load.
	require.NoError(t, m.Load(h, []byte(validJournal)))
	assert.Equal(t, 2, transactions(t, m, h))
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, m.Close(h))
	require.NoError(t, m.Close(h))

	closed, err := m.Release(h)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestUseAfterClose(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)
	view := m.Journal(h)
	require.NoError(t, m.Close(h))

	assert.ErrorIs(t, m.Load(h, []byte(validJournal)), ErrUseAfterClose)
	assert.ErrorIs(t, m.With(h, func(*journal.Journal) error { return nil }), ErrUseAfterClose)
	_, err = m.Info(h)
	assert.ErrorIs(t, err, ErrUseAfterClose)
	_, err = view.Snapshot()
	assert.ErrorIs(t, err, ErrUseAfterClose)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	m := NewManager()
	old, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, m.Close(old))

	fresh, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, old.slot(), fresh.slot())
	assert.NotEqual(t, old, fresh)

	assert.ErrorIs(t, m.Load(old, []byte(validJournal)), ErrUseAfterClose)
	require.NoError(t, m.Close(old))
	require.NoError(t, m.Load(fresh, []byte(validJournal)))
	assert.Equal(t, 1, transactions(t, m, fresh))
}

func TestInvalidHandles(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)

	tests := []struct {
		name string
		h    Handle
	}{
		{"zero", 0},
		{"out of range slot", makeHandle(7, 1)},
		{"future generation", makeHandle(h.slot(), h.generation()+1)},
		{"zero generation", makeHandle(h.slot(), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.With(tt.h, func(*journal.Journal) error { return nil })
			assert.ErrorIs(t, err, ErrInvalidHandle)
		})
	}

	assert.NoError(t, m.Close(0))
	assert.ErrorIs(t, m.Close(makeHandle(7, 1)), ErrInvalidHandle)
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewManager()
	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, m.Load(a, []byte(validJournal)))

	assert.Equal(t, 1, transactions(t, m, a))
	assert.Equal(t, 0, transactions(t, m, b))

	accounts, err := m.Journal(b).Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, m.Close(a))
	assert.Equal(t, 0, transactions(t, m, b))
}

func TestSessionLimit(t *testing.T) {
	m := NewManager(WithMaxSessions(2))
	a, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrSessionLimit)

	require.NoError(t, m.Close(a))
	_, err = m.Create()
	assert.NoError(t, err)
}

func TestJournalTooLarge(t *testing.T) {
	m := NewManager(WithMaxJournalBytes(16))
	h, err := m.Create()
	require.NoError(t, err)

	err = m.Load(h, []byte(validJournal))
	assert.ErrorIs(t, err, ErrJournalTooLarge)
	assert.Equal(t, 0, transactions(t, m, h))
}

func TestLifecycleErrorsBeforeSizeCheck(t *testing.T) {
	m := NewManager(WithMaxJournalBytes(16))
	h, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, m.Close(h))

	assert.ErrorIs(t, m.Load(h, []byte(validJournal)), ErrUseAfterClose)
	assert.ErrorIs(t, m.Load(0, []byte(validJournal)), ErrInvalidHandle)
}

func TestLookup(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)
	info, err := m.Info(h)
	require.NoError(t, err)

	got, err := m.Lookup(info.ID)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	require.NoError(t, m.Close(h))
	_, err = m.Lookup(info.ID)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestConcurrentLoadsOnOneHandle(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			data := fmt.Sprintf("2021-01-%02d Payee %d\n    Expenses:Misc  $%d\n    Assets:Cash\n", i+1, i, i+1)
			if err := m.Load(h, []byte(data)); err != nil {
				t.Errorf("Load %d: %v", i, err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, n, transactions(t, m, h))
}

func TestConcurrentCloseAndUse(t *testing.T) {
	m := NewManager()
	h, err := m.Create()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			err := m.Load(h, []byte(validJournal))
			if err != nil && !errors.Is(err, ErrUseAfterClose) {
				t.Errorf("Load: unexpected error %v", err)
			}
		})
		wg.Go(func() {
			if err := m.Close(h); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 0, m.Len())
}

func TestCloseAll(t *testing.T) {
	m := NewManager()
	for range 3 {
		_, err := m.Create()
		require.NoError(t, err)
	}
	m.CloseAll()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Handles())
}

func TestOwnedSession(t *testing.T) {
	m := NewManager()
	s, err := m.Open()
	require.NoError(t, err)

	require.NoError(t, s.Load([]byte(validJournal)))
	n, err := s.Journal().Transactions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, s.Load([]byte(validJournal)), ErrUseAfterClose)
}

func TestParseHandle(t *testing.T) {
	h := makeHandle(3, 9)
	got, err := ParseHandle(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = ParseHandle("not-a-number")
	assert.ErrorIs(t, err, ErrInvalidHandle)
}
