package command

import "errors"

var (
	// ErrUnknownCommand is returned when a command name resolves to nothing.
	ErrUnknownCommand = errors.New("command: unknown command")

	// ErrInvalidArguments is returned for malformed flags, dates and patterns.
	ErrInvalidArguments = errors.New("command: invalid arguments")

	// ErrEngineFailure is returned when a well-formed command cannot produce a report.
	ErrEngineFailure = errors.New("command: engine failure")
)
