package engine

import (
	"context"
	"errors"

	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/journal"
	"github.com/seantiz/tally/internal/session"
)

// Error kinds reported over the wire and in metrics.
const (
	KindInvalidHandle    = "invalid_handle"
	KindUseAfterClose    = "use_after_close"
	KindSessionLimit     = "session_limit"
	KindJournalTooLarge  = "journal_too_large"
	KindParse            = "parse_error"
	KindUnknownCommand   = "unknown_command"
	KindInvalidArguments = "invalid_arguments"
	KindEngineFailure    = "engine_failure"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

var kinds = []struct {
	kind string
	err  error
}{
	{KindInvalidHandle, session.ErrInvalidHandle},
	{KindUseAfterClose, session.ErrUseAfterClose},
	{KindSessionLimit, session.ErrSessionLimit},
	{KindJournalTooLarge, session.ErrJournalTooLarge},
	{KindParse, journal.ErrParse},
	{KindUnknownCommand, command.ErrUnknownCommand},
	{KindInvalidArguments, command.ErrInvalidArguments},
	{KindEngineFailure, command.ErrEngineFailure},
	{KindCanceled, context.Canceled},
	{KindCanceled, context.DeadlineExceeded},
}

// ErrorKind classifies err by the sentinel it wraps. It returns "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// KindError returns the sentinel for a kind produced by ErrorKind, or nil when
// the kind has none.
func KindError(kind string) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
