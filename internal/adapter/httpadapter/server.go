package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-rollup-etl/internal/scheduler"
)

// Trigger starts an out-of-schedule ingestion of every configured location.
type Trigger interface {
	TryRunOnce(ctx context.Context) error
}

// Server exposes health, readiness, metrics and the manual ingestion endpoint.
type Server struct {
	httpServer *http.Server
	trigger    Trigger
	logger     *slog.Logger

	// base is cancelled by Shutdown so in-flight ingestions stop promptly.
	base       context.Context
	cancelBase context.CancelFunc
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /ingest routes. A nil trigger disables /ingest.
func NewServer(addr string, ready sharedobs.ReadinessChecker, trigger Trigger, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	base, cancel := context.WithCancel(context.Background())

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// /ingest runs synchronously and may take a while.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		trigger:    trigger,
		logger:     logger,
		base:       base,
		cancelBase: cancel,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if trigger != nil {
		mux.HandleFunc("POST /ingest", s.handleIngest)
	}

	return s
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	err := s.trigger.TryRunOnce(ctx)
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, scheduler.ErrBusy):
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{"status": "busy", "error": err.Error()})
	default:
		s.logger.Error("manual ingestion failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error()})
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown cancels any running ingestion, then drains connections within
// the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
