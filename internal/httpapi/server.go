// Package httpapi exposes the daemon's control and status API: poller
// status, cached hits with dismiss, and ruleset editing.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

// PollerControl is the orchestrator surface the API drives.
type PollerControl interface {
	Start(ctx context.Context)
	Stop()
	Status() model.Status
	Hits(ctx context.Context) ([]model.Post, error)
	Dismiss(ctx context.Context, id string) (bool, error)
}

// Server wraps a chi router with the daemon's routes and middleware.
type Server struct {
	Router chi.Router

	poller  PollerControl
	durable store.Store
	log     *slog.Logger
}

// NewServer builds the router.
func NewServer(poller PollerControl, durable store.Store, log *slog.Logger) *Server {
	s := &Server{poller: poller, durable: durable, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/hits", s.handleListHits)
		r.Delete("/hits/{id}", s.handleDismissHit)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/poller/start", s.handleStart)
		r.Post("/poller/stop", s.handleStop)
	})

	s.Router = r
	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
