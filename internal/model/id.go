package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for session and execution records.
func NewID() string {
	return ulid.Make().String()
}
