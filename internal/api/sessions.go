package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/tally/internal/model"
	"github.com/seantiz/tally/internal/session"
	"github.com/seantiz/tally/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// sessionResponse is a session record plus the sources loaded into it while
// it is live.
type sessionResponse struct {
	*model.Session
	Sources []string `json:"sources,omitempty"`
}

// listSessionsResponse wraps the paginated session list.
type listSessionsResponse struct {
	Sessions []*model.Session `json:"sessions"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// listExecutionsResponse wraps the paginated execution list.
type listExecutionsResponse struct {
	Executions []*model.Execution `json:"executions"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.CreateSession(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeSession(w, r, http.StatusCreated, info.ID)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, r, http.StatusOK, chi.URLParam(r, "id"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	sessions, total, err := s.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}

	s.writeJSON(w, http.StatusOK, listSessionsResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// handleLoadJournal parses the raw request body into the session's journal.
// The optional source query parameter names the data in parse errors.
func (s *Server) handleLoadJournal(w http.ResponseWriter, r *http.Request) {
	h, ok := s.resolveLive(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxJournalBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "journal exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := s.engine.LoadSession(r.Context(), h, r.URL.Query().Get("source"), data); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, chi.URLParam(r, "id"))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	h, ok := s.resolveLive(w, r)
	if !ok {
		return
	}

	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.engine.Execute(r.Context(), h, req.Command)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commandResponse{Output: out})
}

// handleDeleteSession closes the session. Deleting a closed session succeeds.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h, err := s.engine.Sessions().Lookup(id); err == nil {
		if err := s.engine.CloseSession(r.Context(), h); err != nil {
			s.writeEngineError(w, err)
			return
		}
	}
	s.writeSession(w, r, http.StatusOK, id)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.getRecord(w, r, id); !ok {
		return
	}

	limit, offset := pageParams(r)
	execs, total, err := s.store.ListExecutions(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.Error("list executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*model.Execution{}
	}

	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: execs,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

// resolveLive maps the {id} URL parameter to a live session handle. A known
// session that is no longer live is reported as gone.
func (s *Server) resolveLive(w http.ResponseWriter, r *http.Request) (session.Handle, bool) {
	id := chi.URLParam(r, "id")
	if h, err := s.engine.Sessions().Lookup(id); err == nil {
		return h, true
	}
	if _, ok := s.getRecord(w, r, id); ok {
		s.writeError(w, http.StatusGone, "session closed")
	}
	return 0, false
}

// getRecord loads the session record, writing 404 or 500 on failure.
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request, id string) (*model.Session, bool) {
	rec, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get session")
		return nil, false
	}
	return rec, true
}

// writeSession writes the session record, adding live sources when the
// session is still open.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, id string) {
	rec, ok := s.getRecord(w, r, id)
	if !ok {
		return
	}
	resp := sessionResponse{Session: rec}
	if h, err := s.engine.Sessions().Lookup(id); err == nil {
		if info, err := s.engine.Sessions().Info(h); err == nil {
			resp.Sources = info.Sources
		}
	}
	s.writeJSON(w, status, resp)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// pageParams reads limit and offset, clamping them to sane values.
func pageParams(r *http.Request) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultListLimit)
	offset = parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
