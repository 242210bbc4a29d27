// Package httpserver exposes the annotation callbacks invoked by the labeling
// service and the liveness and readiness checks.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/formatter"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/tracker"
)

// CompletionRecorder records reviewed pages. It is implemented by *tracker.Tracker.
type CompletionRecorder interface {
	RecordCompletionFrom(ctx context.Context, source string, event domain.ReviewCompletionEvent, expected tracker.ExpectedPageCount) (domain.CompletionOutcome, error)
}

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Tracker   CompletionRecorder
	Store     objectstore.Store
	Formatter formatter.Options
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// Server is the HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	cfg        Config
	logger     zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/v1/annotations", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.Post("/pre-human-task", s.preHumanTask)
		r.Post("/consolidate", s.consolidate)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
