package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/prioadvisor/internal/advisor"
	"github.com/me/prioadvisor/internal/config"
	"github.com/me/prioadvisor/internal/exchange"
	"github.com/me/prioadvisor/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatusProvider exposes the poll loop's state.
type StatusProvider interface {
	Status() advisor.Status
}

// Server is the read-only status API for a running advisor.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.AdvisorConfig
	startTime time.Time
	loop      StatusProvider
	exchange  exchange.Exchange
	store     store.Store // optional; nil disables history endpoints
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the history endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.AdvisorConfig, loop StatusProvider, x exchange.Exchange, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		loop:      loop,
		exchange:  x,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/directives/latest", s.handleLatestDirectives)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Get("/{tick}", s.handleGetHistory)
		})
	})
}
