package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seantiz/tally/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestSession(handle uint64) *model.Session {
	return &model.Session{
		ID:        model.NewID(),
		Handle:    handle,
		Status:    model.SessionActive,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func makeTestExecution(sessionID, command string, created time.Time) *model.Execution {
	return &model.Execution{
		ID:         model.NewID(),
		SessionID:  sessionID,
		Command:    command,
		Status:     model.ExecutionSucceeded,
		Output:     "               $1000  Assets:Testing\n",
		DurationMS: 3,
		CreatedAt:  created,
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := makeTestSession(1<<32 | 1)

	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("ID = %q, want %q", got.ID, sess.ID)
	}
	if got.Handle != sess.Handle {
		t.Errorf("Handle = %d, want %d", got.Handle, sess.Handle)
	}
	if got.Status != model.SessionActive {
		t.Errorf("Status = %q, want %q", got.Status, model.SessionActive)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, sess.CreatedAt)
	}
	if got.ClosedAt != nil {
		t.Errorf("ClosedAt = %v, want nil", got.ClosedAt)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestListSessionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 5 {
		sess := makeTestSession(uint64(i + 1))
		sess.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}

	page, total, err := s.ListSessions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	if page[0].Handle != 5 {
		t.Errorf("newest session handle = %d, want 5", page[0].Handle)
	}

	last, _, err := s.ListSessions(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListSessions offset 4: %v", err)
	}
	if len(last) != 1 || last[0].Handle != 1 {
		t.Errorf("last page = %v, want only handle 1", last)
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := makeTestSession(1)
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.UpdateSessionStatus(ctx, sess.ID, model.SessionClosed); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.SessionClosed {
		t.Errorf("Status = %q, want %q", got.Status, model.SessionClosed)
	}
	if got.ClosedAt == nil {
		t.Error("ClosedAt should be set after closing")
	}
}

func TestUpdateSessionStatusInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := makeTestSession(1)
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.UpdateSessionStatus(ctx, sess.ID, model.SessionClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, status := range []string{model.SessionActive, model.SessionClosed} {
		err := s.UpdateSessionStatus(ctx, sess.ID, status)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("closed→%s: got error %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestUpdateSessionStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateSessionStatus(context.Background(), "nonexistent", model.SessionClosed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestRecordLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := makeTestSession(1)
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for _, n := range []int{1, 3} {
		if err := s.RecordLoad(ctx, sess.ID, n); err != nil {
			t.Fatalf("RecordLoad: %v", err)
		}
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Loads != 2 {
		t.Errorf("Loads = %d, want 2", got.Loads)
	}
	if got.Transactions != 3 {
		t.Errorf("Transactions = %d, want 3", got.Transactions)
	}

	if err := s.RecordLoad(ctx, "nonexistent", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordLoad nonexistent: got %v, want ErrNotFound", err)
	}
}

func TestCreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution("sess-1", "balance", time.Now().UTC().Truncate(time.Second))

	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Command != "balance" {
		t.Errorf("Command = %q, want %q", got.Command, "balance")
	}
	if got.Output != e.Output {
		t.Errorf("Output = %q, want %q", got.Output, e.Output)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "sess-1")
	}

	if _, err := s.GetExecution(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution nonexistent: got %v, want ErrNotFound", err)
	}
}

func TestListExecutionsBySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 3 {
		e := makeTestExecution("sess-a", fmt.Sprintf("cmd-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}
	if err := s.CreateExecution(ctx, makeTestExecution("sess-b", "other", base)); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	list, total, err := s.ListExecutions(ctx, "sess-a", 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Fatalf("got %d executions (total %d), want 3", len(list), total)
	}
	if list[0].Command != "cmd-2" {
		t.Errorf("newest command = %q, want %q", list[0].Command, "cmd-2")
	}
}

func TestGetExecutionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.GetExecutionStats(ctx)
	if err != nil {
		t.Fatalf("GetExecutionStats empty: %v", err)
	}
	if empty.Total != 0 || empty.AvgDurationMS != 0 {
		t.Errorf("empty stats = %+v, want zero", empty)
	}

	if err := s.CreateSession(ctx, makeTestSession(1)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	now := time.Now().UTC()
	ok := makeTestExecution("s", "balance", now)
	ok.DurationMS = 10
	failed := makeTestExecution("s", "register", now)
	failed.Status = model.ExecutionFailed
	failed.DurationMS = 20
	for _, e := range []*model.Execution{ok, failed} {
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}

	stats, err := s.GetExecutionStats(ctx)
	if err != nil {
		t.Fatalf("GetExecutionStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByStatus[model.ExecutionFailed] != 1 || stats.ByStatus[model.ExecutionSucceeded] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if stats.ByCommand["balance"] != 1 {
		t.Errorf("ByCommand = %v", stats.ByCommand)
	}
	if stats.AvgDurationMS != 15 {
		t.Errorf("AvgDurationMS = %v, want 15", stats.AvgDurationMS)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", stats.ActiveSessions)
	}
}
