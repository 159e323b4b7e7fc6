// Package core provides the HTTP chassis for the brokerly billing webhook
// service. It builds a chi router, enforces the cross-cutting concerns
// (recovery, request IDs, logging, security headers, metrics) ahead of the
// domain handlers, and exposes the health endpoint.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"brokerly/internal/config"
)

// MetricsCollector records request telemetry. The CloudWatch implementation
// lives in internal/metrics; tests inject fakes.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group onto a router. Handlers register
// themselves through this indirection so core never imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server bundles the dependencies every request needs. Fields are exported
// for wiring from main and from tests.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are checked by GET /health. Typically just the database.
	HealthProbes []HealthProbe

	// PublicRoutes mount under /v1 (the provider-facing webhook endpoint).
	// InternalRoutes mount under /internal/v1 (CRM service-to-service reads).
	PublicRoutes   []RouteRegistrar
	InternalRoutes []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// Routes are mounted separately via MountRoutes so tests can register only
// what they exercise.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if cfg.Billing.WebhookSecret.Unmask() == "" {
		// Refuse to start without the signing secret. Serving unverified
		// webhooks is worse than not serving at all.
		return nil, fmt.Errorf("billing webhook secret is not configured")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain and all route groups.
//
// Middleware order matters:
//  1. Recoverer       - outermost, catches everything downstream.
//  2. ContextTimeout  - soft deadline under the server write timeout.
//  3. RequestID       - correlation ID for logs and responses.
//  4. SecurityHeaders - present on every response, including errors.
//  5. RequestLogger   - structured logs with signature headers redacted.
//  6. Metrics         - latency/count per endpoint.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.WriteTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, mount := range s.PublicRoutes {
			mount(r)
		}
	})
	s.router.Route("/internal/v1", func(r chi.Router) {
		for _, mount := range s.InternalRoutes {
			mount(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux for tests that mount routes directly.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown logs the shutdown; pool teardown is owned by main, which created
// the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
