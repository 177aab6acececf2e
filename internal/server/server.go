// Package server assembles the HTTP API: routes, middleware, and the
// server lifecycle.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"sheetsight/internal/job"
	"sheetsight/internal/server/handlers"
	"sheetsight/internal/server/middleware"
	"sheetsight/internal/store"
)

// Config carries the server's tunables.
type Config struct {
	Addr           string
	UploadDir      string
	MaxUploadBytes int64
	RateLimit      float64
	RateBurst      int
}

// Server is the HTTP server for the analysis API.
type Server struct {
	httpServer *http.Server
}

// New wires routes, auth, and rate limiting into an http.Server.
func New(cfg Config, supervisor *job.Supervisor, refiner *job.Refiner, chat *job.ChatManager, users store.UserStore, history store.SnapshotStore, db handlers.Pinger, metricsHandler http.Handler, log *slog.Logger) *Server {
	h := handlers.New(supervisor, refiner, chat, users, history, db, log, handlers.Config{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	authMW := middleware.APIKeyAuth(users, log)
	limitMW := middleware.RateLimit(cfg.RateLimit, cfg.RateBurst)
	protect := func(hf http.HandlerFunc) http.Handler {
		return authMW(limitMW(hf))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", h.CreateUser)

	mux.Handle("POST /jobs", protect(h.CreateJob))
	mux.Handle("GET /jobs", protect(h.ListJobs))
	mux.Handle("GET /jobs/{id}", protect(h.GetJob))
	mux.Handle("GET /jobs/{id}/stream", protect(h.StreamJob))
	mux.Handle("POST /jobs/{id}/refine", protect(h.RefineJob))
	mux.Handle("POST /jobs/{id}/chat", protect(h.ChatSend))
	mux.Handle("GET /jobs/{id}/chat", protect(h.ChatHistory))
	mux.Handle("POST /jobs/{id}/cancel", protect(h.CancelJob))
	mux.Handle("GET /dashboards/{id}", protect(h.GetDashboard))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
			// No WriteTimeout: the websocket stream stays open for the
			// lifetime of a multi-minute analysis.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
