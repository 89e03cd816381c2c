package model

import "time"

// Session status constants.
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

// Execution status constants.
const (
	ExecutionSucceeded = "succeeded"
	ExecutionFailed    = "failed"
)

// validTransitions maps each session status to the set of statuses it may transition to.
// Closed is terminal.
var validTransitions = map[string]map[string]bool{
	SessionActive: {
		SessionClosed: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Session is the persisted record of one ledger session.
type Session struct {
	ID           string     `json:"id"`
	Handle       uint64     `json:"handle"`
	Status       string     `json:"status"`
	Loads        int        `json:"loads"`
	Transactions int        `json:"transactions"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// Execution is the persisted record of one command run against a session.
// SessionID is empty for commands run through the global gateway.
type Execution struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExecutionStats is an aggregate view over recorded executions.
type ExecutionStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByCommand      map[string]int `json:"by_command"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	ActiveSessions int            `json:"active_sessions"`
}
