// Package core provides the HTTP chassis: a chi router with the
// cross-cutting middleware chain (panic recovery, request IDs, security
// headers, structured request logging) applied before requests reach the
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// Raster proxy requests can take a while on a cold upstream cache.
const defaultRequestTimeout = 30 * time.Second

// defaultRedactedHeaders lists header names masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Token",
}

// HealthProbe is a subsystem check exposed through GET /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// Server owns the router and the middleware chain. Routes are mounted by the
// caller after construction so tests can wire only what they need.
type Server struct {
	logger *slog.Logger
	probes []HealthProbe
	router *chi.Mux
}

// NewServer creates a Server with an empty router.
func NewServer(logger *slog.Logger, probes []HealthProbe) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		logger: logger,
		probes: probes,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MountRoutes registers the global middleware chain, then the /v1 API group,
// the raster proxy and the health endpoint. Middleware order matters:
// Recoverer outermost, then timeout, request ID, security headers, logging.
func (s *Server) MountRoutes(v1 func(chi.Router), rasterProxy http.Handler) {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.logger, defaultRedactedHeaders))

	s.router.Route("/v1", v1)
	if rasterProxy != nil {
		s.router.Mount("/api/noaa-precip", http.StripPrefix("/api/noaa-precip", rasterProxy))
	}
	s.router.Get("/health", s.HandleHealth)
}
