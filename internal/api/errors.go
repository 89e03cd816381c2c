package api

import (
	"net/http"

	"github.com/seantiz/tally/internal/engine"
)

// errorResponse is the JSON body of every error response. Kind is set when
// the error came from the engine.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// kindStatus maps engine error kinds to HTTP status codes.
var kindStatus = map[string]int{
	engine.KindInvalidHandle:    http.StatusNotFound,
	engine.KindUseAfterClose:    http.StatusGone,
	engine.KindSessionLimit:     http.StatusServiceUnavailable,
	engine.KindJournalTooLarge:  http.StatusRequestEntityTooLarge,
	engine.KindParse:            http.StatusUnprocessableEntity,
	engine.KindUnknownCommand:   http.StatusNotFound,
	engine.KindInvalidArguments: http.StatusBadRequest,
	engine.KindEngineFailure:    http.StatusUnprocessableEntity,
	engine.KindCanceled:         http.StatusServiceUnavailable,
}

// statusForKind returns the HTTP status for an engine error kind.
func statusForKind(kind string) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeEngineError writes err with the status its kind maps to. Internal
// errors are logged and their text withheld.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.ErrorKind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("engine error", "error", err)
		s.writeJSON(w, status, errorResponse{Error: "internal error", Kind: kind})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
