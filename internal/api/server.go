package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/device-track/dtc/internal/audit"
	"github.com/device-track/dtc/internal/auth"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	router         RouterPort
	gateway        GatewayPort
	registry       RegistryPort
	authMiddleware *auth.Middleware
	audit          *audit.Logger
	startTime      time.Time
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// NewServer creates a new API server without authentication on the ingest
// routes. Used by tests; production wiring goes through NewServerWithAuth.
func NewServer(router RouterPort, gateway GatewayPort, registry RegistryPort, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	return &Server{
		router:       router,
		gateway:      gateway,
		registry:     registry,
		startTime:    time.Now(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		idleTimeout:  idleTimeout,
	}
}

// NewServerWithAuth creates a new API server with authentication middleware.
func NewServerWithAuth(router RouterPort, gateway GatewayPort, registry RegistryPort, authMiddleware *auth.Middleware, auditLog *audit.Logger, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	s := NewServer(router, gateway, registry, readTimeout, writeTimeout, idleTimeout)
	s.authMiddleware = authMiddleware
	s.audit = auditLog
	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
