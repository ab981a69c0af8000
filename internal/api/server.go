// Package api serves the alert feed, the packet window, the traffic series
// and capture control over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/query"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Engine is the pipeline surface the API reads and controls.
type Engine interface {
	Alerts() []model.Alert
	Alert(id string) (model.Alert, bool)
	Packets(limit int) []model.Packet
	Series() []model.TrafficBucket
	Stats() model.TrafficStats
	Pause()
	Resume()
	Paused() bool
	InjectAttack(attack model.AttackType, n int) (pipeline.TickResult, error)
}

// Enricher attaches AI analysis to an alert.
type Enricher interface {
	Enrich(ctx context.Context, id string, refresh bool) (string, error)
}

type Option func(*Server)

func WithEnricher(e Enricher) Option {
	return func(s *Server) { s.enricher = e }
}

// WithHistory enables the /api/v1/history routes.
func WithHistory(q query.Querier) Option {
	return func(s *Server) { s.history = q }
}

// Server holds the dependencies for API handlers.
type Server struct {
	engine   Engine
	enricher Enricher
	history  query.Querier
	router   *mux.Router
	log      zerolog.Logger
}

func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{engine: engine, log: logging.Component("api")}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/alerts", s.listAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}", s.getAlert).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/analysis", s.analyzeAlert).Methods(http.MethodPost)
	v1.HandleFunc("/packets", s.listPackets).Methods(http.MethodGet)
	v1.HandleFunc("/series", s.getSeries).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	v1.HandleFunc("/capture/pause", s.pauseCapture).Methods(http.MethodPost)
	v1.HandleFunc("/capture/resume", s.resumeCapture).Methods(http.MethodPost)
	v1.HandleFunc("/simulate/{attack}", s.simulate).Methods(http.MethodPost)

	if s.history != nil {
		v1.HandleFunc("/history/alerts", s.historyAlerts).Methods(http.MethodGet)
		v1.HandleFunc("/history/counts", s.historyCounts).Methods(http.MethodGet)
		v1.HandleFunc("/history/traffic", s.historyTraffic).Methods(http.MethodGet)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("API server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("API server exited")
	return nil
}
