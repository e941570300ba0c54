// Package server wires the HTTP surface: API routes, middleware, the
// incident WebSocket feed, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/gosuda/sentinel/internal/api/ws"
	"github.com/gosuda/sentinel/internal/config"
	"github.com/gosuda/sentinel/internal/engine"
	"github.com/gosuda/sentinel/internal/metrics"
	"github.com/gosuda/sentinel/internal/server/middleware"
	redisstore "github.com/gosuda/sentinel/internal/store/redis"
)

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     *engine.Engine
	pubsub     *redisstore.PubSub
	cfg        *config.Config
	cancel     context.CancelFunc
}

// New creates a Server with all routes wired.
func New(cfg *config.Config, eng *engine.Engine, pubsub *redisstore.PubSub) *Server {
	router := chi.NewRouter()

	// Limiter cleanup goroutines stop when the server shuts down.
	ctx, cancel := context.WithCancel(context.Background())

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Session-Warning"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	router.Use(middleware.Client())

	hub := ws.NewHub(pubsub)

	s := &Server{
		router: router,
		engine: eng,
		pubsub: pubsub,
		cfg:    cfg,
		cancel: cancel,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// Mount API routes on /api/v1 with two sub-groups:
	// 1. Unauthenticated group for the login endpoint.
	// 2. Authenticated group for everything else.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, 5, 10))
			r.Use(middleware.Inspect(eng))

			authConfig := huma.DefaultConfig("Sentinel Auth API", "1.0.0")
			authConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			authAPI := humachi.New(r, authConfig)
			registerAuthRoutes(authAPI, eng)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(eng))
			r.Use(middleware.Inspect(eng))
			r.Use(middleware.RateLimit(ctx, 50, 100))

			apiConfig := huma.DefaultConfig("Sentinel API", "1.0.0")
			apiConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			api := humachi.New(r, apiConfig)
			registerAPIRoutes(api, eng)
		})
	})

	// WebSocket routes.
	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(eng))
		registerWSRoutes(r, hub)
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus scrape endpoint (unauthenticated).
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
