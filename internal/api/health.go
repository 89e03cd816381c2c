package api

import (
	"net/http"
)

// healthResponse reports liveness plus a summary of the session table.
type healthResponse struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	ActiveJournal bool   `json:"active_journal"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Sessions:      s.engine.Sessions().Len(),
		ActiveJournal: s.engine.Active() != 0,
	})
}
