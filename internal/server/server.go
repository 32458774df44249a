// Package server exposes the digest engine over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zivalx/dAIgest/internal/engine"
	"github.com/zivalx/dAIgest/internal/ports"
)

// Handler is the HTTP adapter bound to the engine and config store.
type Handler struct {
	engine  *engine.Engine
	configs ports.SourceConfigRepository
	logger  *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(eng *engine.Engine, configs ports.SourceConfigRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, configs: configs, logger: logger.With("component", "server")}
}

// NewRouter registers all routes and the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cycles", func(r chi.Router) {
			r.Post("/", h.createCycle)
			r.Get("/", h.listCycles)
			r.Get("/{id}", h.getCycle)
			r.Delete("/{id}", h.deleteCycle)
			r.Post("/{id}/fail", h.failCycle)
		})
		r.Route("/configs", func(r chi.Router) {
			r.Post("/", h.createConfig)
			r.Get("/", h.listConfigs)
			r.Get("/{id}", h.getConfig)
			r.Put("/{id}", h.updateConfig)
			r.Delete("/{id}", h.deleteConfig)
		})
	})

	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds a server listening on addr with the given handler.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "server"),
	}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
