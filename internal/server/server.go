// Package server exposes the job registration service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/auscope/vgljobs/internal/errors"
	"github.com/auscope/vgljobs/internal/server/handlers"
	"github.com/auscope/vgljobs/internal/server/middleware"
)

// Server wraps the chi router and the http.Server lifecycle.
type Server struct {
	host string
	port int

	router  chi.Router
	logger  *zap.Logger
	health  *handlers.HealthManager
	version handlers.VersionInfo
	jobs    *handlers.JobsHandler

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithHealthManager(m *handlers.HealthManager) Option {
	return func(s *Server) { s.health = m }
}

func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithJobsHandler enables the /jobs routes.
func WithJobsHandler(h *handlers.JobsHandler) Option {
	return func(s *Server) { s.jobs = h }
}

func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// New builds a server listening on host:port once Start is called.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		version:      handlers.VersionInfo{Version: "dev"},
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = handlers.NewHealthManager(s.version.Version)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusNotFound, apperrors.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health", s.health.HealthHandler)
	r.Get("/health/live", s.health.LivenessHandler)
	r.Get("/health/ready", s.health.ReadinessHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.jobs != nil {
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Post("/register", s.jobs.Register)
			r.Post("/status", s.jobs.Status)
		})
	}
	r.Post("/files/selected", handlers.SelectedFiles)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until ctx is canceled or the server fails.
// Cancellation triggers Shutdown with shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
