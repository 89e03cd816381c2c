package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByCommand      map[string]int `json:"by_command"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	ActiveSessions int            `json:"active_sessions"`
	LiveSessions   int            `json:"live_sessions"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetExecutionStats(r.Context())
	if err != nil {
		s.logger.Error("get execution stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:          stats.Total,
		ByStatus:       stats.ByStatus,
		ByCommand:      stats.ByCommand,
		AvgDurationMS:  stats.AvgDurationMS,
		ActiveSessions: stats.ActiveSessions,
		LiveSessions:   s.engine.Sessions().Len(),
	})
}
