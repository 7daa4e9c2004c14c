// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/fieldstate/internal/activity"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/eventbus"
	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/metrics"
	"github.com/matthewbaird/fieldstate/internal/session"
	"github.com/matthewbaird/fieldstate/internal/wire"
)

// Config holds server configuration.
type Config struct {
	Port int
	// SessionIdle and SessionMaxAge bound live sessions. Zero disables the
	// bound.
	SessionIdle   time.Duration
	SessionMaxAge time.Duration
	Logger        *slog.Logger
}

// Deps are the collaborators the router serves.
type Deps struct {
	Sessions *session.Manager
	Store    activity.Store
	Logger   *slog.Logger
}

// NewRouter registers every route.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(deps.Sessions, deps.Store, logger)
	ws := wire.NewHandler(deps.Sessions, logger)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recovery(logging.WithComponent(logger, "http")))
	r.Use(logRequests(logging.WithComponent(logger, "http")))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": deps.Sessions.Len()})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", h.Evaluate)
		r.Get("/ws", ws.ServeHTTP)
		r.Get("/activity/search", h.Search)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Get("/history", h.History)
		})
	})
	return r
}

// Run starts the HTTP server with all routes registered. It returns when
// ctx is cancelled and the server has shut down.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logging.WithComponent(logger, "server")

	bus := eventbus.New(1024, logger)
	bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	bus.Subscribe("metrics", eventbus.NewMetricsConsumer())

	store := activity.NewMemoryStore()
	recorder := event.NewActivityRecorder(store)
	recorder.SetPublisher(bus)
	recorder.OnError(func(err error) { log.Error("recording transition", "error", err) })

	sessions := session.NewManager(session.Options{
		MaxAge:      cfg.SessionMaxAge,
		IdleTimeout: cfg.SessionIdle,
		Publisher:   recorder,
		Logger:      logger,
	})

	bus.Start(ctx)
	defer bus.Stop()
	go sessions.Run(ctx, time.Minute)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(Deps{Sessions: sessions, Store: store, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	log.Info("starting server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
