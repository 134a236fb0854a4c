// Package server exposes the sheet query/save surface over HTTP as a JSON
// API. It owns request decoding, page range validation, actor resolution and
// error-to-status mapping; everything else is delegated to the service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapgrid/internal/registry"
	"github.com/leapstack-labs/leapgrid/internal/service"
)

// ActorHeader carries the authenticated actor identity resolved by the
// deployment's edge; absent, the actor defaults to "anonymous".
const ActorHeader = "X-Leapgrid-Actor"

// Server is the HTTP front of the service.
type Server struct {
	svc      *service.Service
	registry *registry.Registry
	port     int
	watch    bool
	logger   *slog.Logger
}

// Config holds configuration for the HTTP server.
type Config struct {
	Service  *service.Service
	Registry *registry.Registry
	Port     int
	Watch    bool
	Logger   *slog.Logger
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		svc:      cfg.Service,
		registry: cfg.Registry,
		port:     cfg.Port,
		watch:    cfg.Watch,
		logger:   logger,
	}
}

// Router builds the chi router. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sheets", s.handleListSheets)
		r.Post("/sheets/{sheetID}/query", s.handleQuery)
		r.Post("/sheets/{sheetID}/save", s.handleSave)
	})
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.registry.Watch(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
