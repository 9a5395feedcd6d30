// Package adminapi serves the administrative HTTP API of the connection
// manager: listing, forgetting and reconnecting sessions and shares.
package adminapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/smbconn/internal/adminapi/auth"
	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/smbconn"
)

// Server provides the admin HTTP API.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       config.AdminConfig
	shutdownOnce sync.Once
}

// NewServer creates a new admin API server in a stopped state. Call Start
// to begin serving requests.
func NewServer(cfg config.AdminConfig, mgr *smbconn.Manager) (*Server, error) {
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:              cfg.JWT.Secret,
		AccessTokenDuration: cfg.JWT.AccessTokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(mgr, jwtService, cfg.Users),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		config: cfg,
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("admin API listen: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Admin API listening", "port", s.config.Port)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Admin API shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("admin API failed: %w", err)
	}
}

// Stop gracefully shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("admin API shutdown error: %w", err)
			logger.Error("Admin API shutdown error", logger.Err(err))
		} else {
			logger.Info("Admin API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
