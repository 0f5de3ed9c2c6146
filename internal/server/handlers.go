package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/store"
)

type createSessionRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type paginatedSessions struct {
	Total  int             `json:"total"`
	Items  []model.Session `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 10)
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be non-negative")
		return
	}
	if limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be positive")
		return
	}
	if limit > 100 {
		limit = 100
	}

	items, total, err := s.store.Sessions().List(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, paginatedSessions{
		Total:  total,
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.store.Sessions().Create(r.Context(), req.Name, req.Metadata)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.broadcaster.SessionChanged(sess)

	if s.agents != nil {
		if err := s.agents.Start(context.Background(), sess); err != nil {
			s.logger.Error().Err(err).Int64("sessionId", sess.ID).Msg("Failed to start agent")
		}
	}

	s.logger.Info().Int64("sessionId", sess.ID).Str("name", sess.Name).Msg("Session created")
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, err := s.store.Sessions().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleHaltSession stops the session's agent. Halting is idempotent: a
// session already in a terminal state is left untouched. A session with no
// live agent is forced straight to halted; otherwise the runner is signaled
// and finalizes the status itself.
func (s *Server) handleHaltSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, err := s.store.Sessions().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	if sess.Status.Terminal() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s.agents == nil || !s.agents.Stop(id) {
		if err := s.setStatus(r.Context(), id, model.StatusHalted); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to halt session")
			return
		}
		s.logger.Info().Int64("sessionId", id).Msg("Session halted with no live agent")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.setStatus(r.Context(), id, model.StatusHalting); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to halt session")
		return
	}

	s.logger.Info().Int64("sessionId", id).Msg("Session halt requested")
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeSession relaunches the agent for a halted session. Only
// halted sessions are resumable; anything else, or a session whose agent
// is still live, conflicts.
func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, err := s.store.Sessions().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	if sess.Status != model.StatusHalted {
		writeError(w, http.StatusConflict, "only halted sessions can be resumed")
		return
	}

	if s.agents != nil && s.agents.Running(id) {
		writeError(w, http.StatusConflict, "agent is already running for this session")
		return
	}

	if err := s.setStatus(r.Context(), id, model.StatusPending); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume session")
		return
	}
	sess.Status = model.StatusPending

	if s.agents != nil {
		if err := s.agents.Start(context.Background(), sess); err != nil {
			s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to restart agent")
			_ = s.setStatus(r.Context(), id, model.StatusError)
			writeError(w, http.StatusInternalServerError, "failed to restart agent")
			return
		}
	}

	s.logger.Info().Int64("sessionId", id).Msg("Session resumed")
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionTrajectories(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := s.store.Sessions().Get(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	records, err := s.store.Trajectories().BySession(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to load trajectories")
		writeError(w, http.StatusInternalServerError, "failed to load trajectories")
		return
	}
	if records == nil {
		records = []model.Trajectory{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) setStatus(ctx context.Context, id int64, status model.Status) error {
	if err := s.store.Sessions().UpdateStatus(ctx, id, status); err != nil {
		s.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to persist status change")
		return err
	}
	s.broadcaster.SessionStatusChanged(id, status)
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
