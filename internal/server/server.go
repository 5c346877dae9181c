// Package server exposes the cognitive pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// Pipeline processes one interaction end to end. It always returns a usable
// result; failures surface as fallback responses, never as errors.
type Pipeline interface {
	Process(ctx context.Context, req *domain.InteractionRequest) *domain.Result
}

type Server struct {
	Router   *chi.Mux
	Port     int
	logger   *slog.Logger
	pipeline Pipeline
	traces   ports.TraceStore
	httpSrv  *http.Server
}

// New builds the HTTP server around a pipeline and a trace store. The trace
// store may be nil, in which case the trace endpoint returns 404.
func New(port int, logger *slog.Logger, pipeline Pipeline, traces ports.TraceStore) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "haven")
	})

	s := &Server{
		Router:   r,
		Port:     port,
		logger:   logger,
		pipeline: pipeline,
		traces:   traces,
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/interactions", s.handleInteraction)
	if traces != nil {
		r.Get("/v1/users/{userID}/traces", s.handleTraces)
	}

	return s
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called. A closed server returns nil.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on :%d: %w", s.Port, err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
