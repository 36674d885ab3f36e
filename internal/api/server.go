package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/ingest"
	"github.com/welltegra/brahan/internal/ledger"
	"github.com/welltegra/brahan/internal/run"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, ingestor *ingest.Ingestor, runner *run.Runner, led *ledger.Ledger, catalogPath, version string) *Server {
	handler := NewHandler(repo, cache, bus, ingestor, runner, led, catalogPath, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no operator required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (operator required)
	router.Route("/", func(r chi.Router) {
		r.Use(OperatorMiddleware)

		// Finding ingestion
		r.Post("/findings", handler.IngestFindings)

		// Analysis runs
		r.Post("/runs", handler.StartRun)
		r.Get("/runs/{id}", handler.GetRun)

		// Well results
		r.Get("/wells/{id}/risk", handler.GetWellRisk)
		r.Get("/wells/{id}/risk/history", handler.GetRiskHistory)
		r.Get("/wells/{id}/correlations", handler.GetWellCorrelations)

		// Catalog management
		r.Get("/catalog", handler.GetCatalog)
		r.Post("/catalog/reload", handler.ReloadCatalog)

		// Audit ledger
		r.Get("/audit/records", handler.ExportAudit)
		r.Get("/audit/verify", handler.VerifyAudit)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
