package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/giftdrive/internal/config"
)

// Server represents the API server
type Server struct {
	config   config.ServerConfig
	handler  http.Handler
	handlers *Handlers
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new API server. Admin routes are mounted only when
// adminToken is non-empty.
func NewServer(cfg config.ServerConfig, handlers *Handlers, adminToken string) *Server {
	router := SetupRoutes(handlers, RouteOptions{
		AdminToken:  adminToken,
		CORSOrigins: cfg.CORSOrigins,
	})
	return &Server{
		config:   cfg,
		handler:  router,
		handlers: handlers,
		router:   router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	read := time.Duration(s.config.ReadTimeoutSeconds) * time.Second
	write := time.Duration(s.config.WriteTimeoutSeconds) * time.Second
	if read <= 0 {
		read = 15 * time.Second
	}
	if write <= 0 {
		write = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
