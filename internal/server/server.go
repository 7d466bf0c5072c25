package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/modules/accounts"
	"github.com/fttrader/contest-sync/internal/modules/contests"
	"github.com/fttrader/contest-sync/internal/modules/updatequeue"
)

// Config holds server configuration
type Config struct {
	Port            int
	Log             zerolog.Logger
	DevMode         bool
	SystemHandlers  *SystemHandlers
	UpdateHandlers  *updatequeue.Handler
	AccountHandlers *accounts.Handler
	ContestHandlers *contests.Handler
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	port   int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		port:   cfg.Port,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(cfg Config) {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// System
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", cfg.SystemHandlers.HandleSystemStatus)
			r.Get("/broker", cfg.SystemHandlers.HandleBrokerStatus)
			r.Post("/jobs/update-tick", cfg.SystemHandlers.HandleTriggerUpdateTick)
			r.Post("/jobs/auto-update", cfg.SystemHandlers.HandleTriggerAutoUpdate)
		})

		// Update queues
		r.Route("/updates", func(r chi.Router) {
			r.Post("/queues", cfg.UpdateHandlers.HandleCreateQueue)
			r.Post("/queues/clear", cfg.UpdateHandlers.HandleClearQueues)
			r.Post("/reset-active-requests", cfg.UpdateHandlers.HandleResetActiveRequests)
			r.Get("/status", cfg.UpdateHandlers.HandleGetStatus)
			r.Get("/history", cfg.UpdateHandlers.HandleGetHistory)
		})

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", cfg.AccountHandlers.HandleGetAccount)
			r.Get("/{id}/orders", cfg.AccountHandlers.HandleGetOrders)
			r.Get("/contest/{contestID}", cfg.AccountHandlers.HandleListByContest)
		})

		// Contests
		r.Route("/contests", func(r chi.Router) {
			r.Get("/{id}", cfg.ContestHandlers.HandleGetContest)
			r.Get("/active", cfg.ContestHandlers.HandleListActive)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
