// Package gateway exposes the player integration surface over HTTP:
// unlock, media loading, quota queries, play completion, and the
// session lifecycle endpoints.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/haldane/mediagate/internal/auth"
	"github.com/haldane/mediagate/internal/mediacache"
	"github.com/haldane/mediagate/internal/quota"
	"github.com/haldane/mediagate/internal/session"
	"github.com/rs/zerolog"
)

// Config holds the gateway server configuration.
type Config struct {
	ListenAddr string
}

// Server represents the gateway HTTP server.
type Server struct {
	config   Config
	auth     *auth.Service
	guard    *session.Guard
	media    *mediacache.Manager
	quota    *quota.Counter
	server   *http.Server
	router   *mux.Router
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates a new gateway server.
func NewServer(cfg Config, authService *auth.Service, guard *session.Guard, media *mediacache.Manager, counter *quota.Counter, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config: cfg,
		auth:   authService,
		guard:  guard,
		media:  media,
		quota:  counter,
		router: router,
		logger: logger.With().Str("component", "gateway").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	// Public routes (no auth required)
	s.router.HandleFunc("/api/unlock", s.handleUnlock).Methods("POST")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Authenticated routes: bearer token plus a live session
	authRouter := s.router.PathPrefix("/api").Subrouter()
	authRouter.Use(AuthMiddleware(s.auth, s.guard))

	authRouter.HandleFunc("/media", s.handleMedia).Methods("GET")
	authRouter.HandleFunc("/quota/{class}", s.handleQuota).Methods("GET")
	authRouter.HandleFunc("/quota/{class}/complete", s.handleQuotaComplete).Methods("POST")
	authRouter.HandleFunc("/session", s.handleSession).Methods("GET")
	authRouter.HandleFunc("/session/activity", s.handleActivity).Methods("POST")
	authRouter.HandleFunc("/lock", s.handleLock).Methods("POST")
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the route handler, used by tests to drive the server
// without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the gateway server. Stale cache entries are swept on
// startup, the page-entry hook of the original lifecycle.
func (s *Server) Start() error {
	sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.media.SweepExpired(sweepCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Startup cache sweep failed")
	}

	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting gateway server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated gateway listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping gateway server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway server shutdown: %w", err)
	}

	return nil
}
