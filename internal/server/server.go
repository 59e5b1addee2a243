// Package server wires the chi router, middleware chain, and HTTP listener
// lifecycle for the proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the server.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Server owns the router and the listener lifecycle.
type Server struct {
	Router *chi.Mux

	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router with the standard middleware chain. authMiddleware
// runs ahead of the request timeout; pass nil to disable authentication
// (tests only).
func New(opts Options, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if opts.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(opts.MaxBodyBytes))
	}
	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	if opts.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "inference-proxy")
	})

	return &Server{
		Router: r,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
