package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/httpserver/middleware"
	"github.com/davidbz/chatrelay/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	server := &Server{
		handler:     handler,
		middlewares: middlewares,
	}
	if cfg != nil {
		server.config = *cfg
	}

	server.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", server.config.Port),
		Handler:           server.middlewares(handler.Routes()),
		ReadHeaderTimeout: time.Duration(server.config.ReadTimeout) * time.Second,
		ReadTimeout:       time.Duration(server.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(server.config.WriteTimeout) * time.Second,
	}
	return server
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server",
		observability.String("addr", listener.Addr().String()))

	if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
