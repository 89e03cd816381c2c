package api

import (
	"encoding/json"
	"net/http"
)

// commandRequest is the JSON body for command execution routes.
type commandRequest struct {
	Command string `json:"command"`
}

// commandResponse carries the report text produced by a command.
type commandResponse struct {
	Output string `json:"output"`
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Registry().List())
}

// handleRunCommand runs a command line against the active journal through the
// global entry point. The server engine does not read -f sources.
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.engine.Run(r.Context(), req.Command)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commandResponse{Output: out})
}
