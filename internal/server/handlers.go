package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/mutate"
	"github.com/hyperjump/matome/internal/storage"
)

type analyzeResponse struct {
	SessionID string            `json:"session_id"`
	Revision  int64             `json:"revision"`
	Themes    models.ThemeSet   `json:"themes"`
	Summary   models.RunSummary `json:"summary"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("analyze request",
		zap.Int("documents", len(req.Documents)),
		zap.String("refined_query", req.RefinedQuery))

	result, err := s.engine.Analyze(r.Context(), &req)
	if err != nil {
		s.logger.Error("analyze failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	now := time.Now().UTC()
	session := &storage.Session{
		ID:           uuid.NewString(),
		RefinedQuery: req.RefinedQuery,
		Keywords:     req.Keywords,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.logger.Error("create session failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	revision, err := s.store.SaveThemeSet(r.Context(), session.ID, 0, result.Themes, result.Summary)
	if err != nil {
		s.logger.Error("save theme set failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setPool(session.ID, result.Pool)

	s.respondJSON(w, http.StatusCreated, analyzeResponse{
		SessionID: session.ID,
		Revision:  revision,
		Themes:    result.Themes,
		Summary:   result.Summary,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	sessions, err := s.store.ListSessions(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleGetThemes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.store.GetThemeSet(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

// mutationRequest carries either a natural-language request (operation
// empty) or an explicit operation with its target.
type mutationRequest struct {
	Request   string `json:"request,omitempty"`
	Operation string `json:"operation,omitempty"`
	Target    string `json:"target,omitempty"`
	Recluster bool   `json:"recluster,omitempty"`
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Request == "" && req.Operation == "" {
		s.respondError(w, http.StatusBadRequest, "request or operation is required")
		return
	}

	record, err := s.store.GetThemeSet(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	pool := s.getPool(id)

	var mutated models.ThemeSet
	if req.Operation != "" {
		kind, err := mutate.ParseKind(req.Operation)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		mutated, err = s.mutator.Apply(r.Context(), record.Themes, mutate.Op{
			Kind:      kind,
			Target:    req.Target,
			Request:   req.Request,
			Recluster: req.Recluster,
		}, pool)
		if err != nil {
			s.logger.Error("mutation failed", zap.Error(err), zap.String("operation", req.Operation))
			s.respondError(w, statusFor(err), err.Error())
			return
		}
	} else {
		mutated, err = s.mutator.ApplyRequest(r.Context(), record.Themes, req.Request, pool)
		if err != nil {
			s.logger.Error("mutation failed", zap.Error(err))
			s.respondError(w, statusFor(err), err.Error())
			return
		}
	}

	summary := record.Summary
	summary.ThemesSelected = len(mutated)
	revision, err := s.store.SaveThemeSet(r.Context(), id, record.Revision, mutated, summary)
	if err != nil {
		s.logger.Error("save theme set failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, analyzeResponse{
		SessionID: id,
		Revision:  revision,
		Themes:    mutated,
		Summary:   summary,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionCount, err := s.store.CountSessions(r.Context())
	if err != nil {
		s.logger.Error("status: count sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.poolsMu.RLock()
	livePools := len(s.pools)
	s.poolsMu.RUnlock()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":   sessionCount,
		"live_pools": livePools,
	})
}

// statusFor maps pipeline and storage sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyCorpus),
		errors.Is(err, models.ErrTooFewDocuments),
		errors.Is(err, models.ErrInvalidProposal),
		errors.Is(err, models.ErrInvalidCandidateTheme):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrThemeNotFound),
		errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoMatchingDocuments):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
