package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/tally/internal/model"

	_ "modernc.org/sqlite"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    handle       INTEGER NOT NULL,
    status       TEXT NOT NULL,
    loads        INTEGER NOT NULL DEFAULT 0,
    transactions INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    closed_at    DATETIME
)`

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL DEFAULT '',
    command     TEXT NOT NULL,
    status      TEXT NOT NULL,
    output      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
)`

const createExecutionsIndex = `
CREATE INDEX IF NOT EXISTS idx_executions_session ON executions (session_id, created_at)`

// ErrNotFound is returned when a session or execution record is not found.
var ErrNotFound = errors.New("record not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createSessionsTable, createExecutionsTable, createExecutionsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, handle, status, loads, transactions, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, int64(sess.Handle), sess.Status, sess.Loads, sess.Transactions,
		sess.CreatedAt, sess.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, handle, status, loads, transactions, created_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	sess := &model.Session{}
	var handle int64
	if err := row.Scan(
		&sess.ID, &handle, &sess.Status, &sess.Loads, &sess.Transactions,
		&sess.CreatedAt, &sess.ClosedAt,
	); err != nil {
		return nil, err
	}
	sess.Handle = uint64(handle)
	return sess, nil
}

// GetSession retrieves a session record by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a paginated list of sessions ordered by created_at DESC,
// along with the total count of all sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, total, nil
}

// UpdateSessionStatus moves a session to a new status, enforcing the allowed
// transitions. Closing a session also sets closed_at.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM sessions WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get session status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}

	if status == model.SessionClosed {
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET status = ?, closed_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE sessions SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	return tx.Commit()
}

// RecordLoad counts one successful journal load and stores the session's new
// transaction total.
func (s *SQLiteStore) RecordLoad(ctx context.Context, id string, transactions int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET loads = loads + 1, transactions = ? WHERE id = ?",
		transactions, id,
	)
	if err != nil {
		return fmt.Errorf("record load: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateExecution inserts a command execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, e *model.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, session_id, command, status, output, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Command, e.Status, e.Output, e.Error, e.DurationMS, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

const executionColumns = `id, session_id, command, status, output, error, duration_ms, created_at`

func scanExecution(row scanner) (*model.Execution, error) {
	e := &model.Execution{}
	if err := row.Scan(
		&e.ID, &e.SessionID, &e.Command, &e.Status, &e.Output, &e.Error,
		&e.DurationMS, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return e, nil
}

// GetExecution retrieves an execution record by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	e, err := scanExecution(s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns a session's executions, newest first, with the total
// count for that session.
func (s *SQLiteStore) ListExecutions(ctx context.Context, sessionID string, limit, offset int) ([]*model.Execution, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM executions WHERE session_id = ?", sessionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return executions, total, nil
}

// GetExecutionStats aggregates the execution history.
func (s *SQLiteStore) GetExecutionStats(ctx context.Context) (*model.ExecutionStats, error) {
	stats := &model.ExecutionStats{
		ByStatus:  make(map[string]int),
		ByCommand: make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(duration_ms) FROM executions",
	).Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	if err := s.countBy(ctx, "SELECT status, COUNT(*) FROM executions GROUP BY status", stats.ByStatus); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	if err := s.countBy(ctx, "SELECT command, COUNT(*) FROM executions GROUP BY command", stats.ByCommand); err != nil {
		return nil, fmt.Errorf("count by command: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE status = ?", model.SessionActive,
	).Scan(&stats.ActiveSessions); err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}

	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}
