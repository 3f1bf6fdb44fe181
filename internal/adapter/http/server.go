package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay is the part of the relay the HTTP endpoints read from.
type Relay interface {
	sharedobs.ReadinessChecker
	Counts() map[string]int
}

// Server exposes health, readiness, status, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /status, and /metrics routes.
func NewServer(addr string, relay Relay, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(relay))
	mux.HandleFunc("GET /status", handleStatus(relay))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type statusResponse struct {
	Connected bool           `json:"connected"`
	Counts    map[string]int `json:"counts"`
}

// handleStatus reports the stream connection and the session's per-account counts.
func handleStatus(relay Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sharedobs.WriteJSON(w, http.StatusOK, statusResponse{
			Connected: relay.CheckReadiness(r.Context()) == nil,
			Counts:    relay.Counts(),
		})
	}
}
