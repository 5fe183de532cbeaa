// Package server provides the HTTP API for matome.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/mutate"
	"github.com/hyperjump/matome/internal/storage"
)

// Server is the HTTP server for the matome API.
type Server struct {
	engine  *engine.Engine
	mutator *mutate.Mutator
	store   storage.Store
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	// Document pools live for the server process only; documents are never
	// persisted. Mutations that re-cluster need the pool of the session's
	// original analyze call.
	poolsMu sync.RWMutex
	pools   map[string][]models.Document
}

// NewServer creates a server with the given dependencies.
func NewServer(
	eng *engine.Engine,
	mutator *mutate.Mutator,
	store storage.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:  eng,
		mutator: mutator,
		store:   store,
		config:  cfg,
		logger:  logger,
		pools:   make(map[string][]models.Document),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/analyze", s.handleAnalyze)
	r.Get("/api/v1/sessions", s.handleListSessions)
	r.Get("/api/v1/sessions/{id}/themes", s.handleGetThemes)
	r.Post("/api/v1/sessions/{id}/mutations", s.handleMutate)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setPool(sessionID string, pool []models.Document) {
	s.poolsMu.Lock()
	defer s.poolsMu.Unlock()
	s.pools[sessionID] = pool
}

func (s *Server) getPool(sessionID string) []models.Document {
	s.poolsMu.RLock()
	defer s.poolsMu.RUnlock()
	return s.pools[sessionID]
}
