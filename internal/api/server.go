// Package api is the HTTP facade over the lookup engine: it validates the
// request, applies the caller-level retry policy, and maps engine outcomes to
// HTTP responses.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

// Searcher runs one license search.
type Searcher interface {
	Search(ctx context.Context, criteria lookup.SearchCriteria) (lookup.SearchResult, error)
}

// RequestRecorder counts served requests.
type RequestRecorder interface {
	HTTPRequest(route, code string)
}

// Server serves the search facade.
type Server struct {
	cfg      config.ServerConfig
	searcher Searcher
	retry    RetryPolicy
	recorder RequestRecorder
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics exposes gatherer on /metrics and records requests with recorder.
func WithMetrics(recorder RequestRecorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.recorder = recorder
		s.gatherer = gatherer
	}
}

// NewServer creates the facade.
func NewServer(cfg config.ServerConfig, searcher Searcher, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		retry:    NewRetryPolicy(cfg.Retry),
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.accessLogMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post("/search", s.handleSearch)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves on the configured address until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ErrorLog:     zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server.", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
