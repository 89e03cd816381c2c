package store

import (
	"context"
	"errors"

	"github.com/seantiz/tally/internal/model"
)

// ErrInvalidTransition is returned when a session status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence operations for session records and their
// command history.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error
	RecordLoad(ctx context.Context, id string, transactions int) error
	CreateExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, sessionID string, limit, offset int) ([]*model.Execution, int, error)
	GetExecutionStats(ctx context.Context) (*model.ExecutionStats, error)
	Close() error
}
