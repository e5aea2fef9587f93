// Package server exposes the expect engine over HTTP: script execution
// (one-shot and streaming over websocket), session inspection, and
// transcript retrieval.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/expectctl/internal/config"
	"github.com/user/expectctl/internal/expect"
	"github.com/user/expectctl/internal/record"
)

type Server struct {
	cfg        config.Config
	httpServer *http.Server
}

func New(cfg config.Config, mgr *expect.Manager, store *record.Store) *Server {
	h := &handler{cfg: cfg, mgr: mgr, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.removeSession)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", h.getTranscript)
	mux.HandleFunc("GET /api/sessions/{id}/summary", h.getSummary)
	mux.HandleFunc("POST /api/scripts/run", h.runScript)
	mux.HandleFunc("/ws/scripts", h.streamScript)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.Port),
			Handler: mux,
		},
	}
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
