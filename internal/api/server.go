package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/riskfoundry/kestrel/internal/alerts"
	"github.com/riskfoundry/kestrel/internal/domain"
	"github.com/riskfoundry/kestrel/internal/weather"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, alertService *alerts.Service, expr *alerts.ExpressionEngine, scorer *weather.Scorer, analyticsTTL time.Duration, version string) *Server {
	handler := NewHandler(repo, cache, bus, alertService, expr, scorer, analyticsTTL, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no organization required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (organization required)
	router.Route("/", func(r chi.Router) {
		r.Use(OrganizationMiddleware)

		// Portfolio analytics
		r.Get("/analytics", handler.GetAnalytics)

		// Alert processing
		r.Post("/alerts/process", handler.ProcessAlerts)

		// Alert rule management
		r.Get("/alert-rules", handler.ListAlertRules)
		r.Post("/alert-rules", handler.CreateAlertRule)
		r.Get("/alert-rules/{id}", handler.GetAlertRule)
		r.Delete("/alert-rules/{id}", handler.DeleteAlertRule)

		// Alert instance lifecycle
		r.Get("/alert-instances", handler.ListAlertInstances)
		r.Post("/alert-instances/{id}/acknowledge", handler.AcknowledgeAlertInstance)
		r.Post("/alert-instances/{id}/resolve", handler.ResolveAlertInstance)

		// Weather risk map layer
		r.Get("/weather/risk", handler.WeatherRisk)
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
