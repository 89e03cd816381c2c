package session

import "errors"

var (
	// ErrInvalidHandle is returned for the zero handle and for handles this
	// manager never issued.
	ErrInvalidHandle = errors.New("session: invalid handle")

	// ErrUseAfterClose is returned for handles whose session has been closed.
	ErrUseAfterClose = errors.New("session: use after close")

	// ErrSessionLimit is returned by Create when the live session limit is reached.
	ErrSessionLimit = errors.New("session: too many open sessions")

	// ErrJournalTooLarge is returned by Load for buffers over the configured size.
	ErrJournalTooLarge = errors.New("session: journal data too large")
)
