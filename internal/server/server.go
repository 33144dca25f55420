// Package server provides the HTTP API for Kaiwa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/ingest"
	"github.com/hyperjump/kaiwa/internal/query"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// ModelService reports Ollama availability and manages installed models.
// Satisfied by *llm.OllamaClient.
type ModelService interface {
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	Pull(ctx context.Context, model string) error
}

// Server is the HTTP server for the Kaiwa API.
type Server struct {
	pipeline     *ingest.Pipeline
	orchestrator *query.Orchestrator
	sessions     *session.Manager
	storage      storage.Storage
	models       ModelService
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *ingest.Pipeline,
	orchestrator *query.Orchestrator,
	sessions *session.Manager,
	store storage.Storage,
	models ModelService,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:     pipeline,
		orchestrator: orchestrator,
		sessions:     sessions,
		storage:      store,
		models:       models,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/documents", s.handleListDocuments)
	r.Post("/documents", s.handleUploadDocument)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Delete("/documents/{id}", s.handleDeleteDocument)
	r.Post("/query", s.handleQuery)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)
	r.Post("/models/pull", s.handlePullModel)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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
