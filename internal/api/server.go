// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/config"
	"github.com/reqtune/reqtune/internal/engine"
)

// Server is the operator-facing HTTP surface: health, insights and model
// statistics on the admin port, Prometheus metrics on a separate port.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	http    *http.Server
	metrics *http.Server
}

// NewServer builds the admin router over the engine. When a gatherer is
// provided, /metrics is served on its own listener at Server.MetricsPort.
func NewServer(cfg *config.Config, eng *engine.Engine, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	h := NewHandler(eng, logger)
	h.RegisterRoutes(r)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if gatherer != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		s.metrics = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s
}

// Start serves until Shutdown
func (s *Server) Start() error {
	if s.metrics != nil {
		go func() {
			s.logger.Info("metrics listening", zap.String("addr", s.metrics.Addr))
			if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	s.logger.Info("admin api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests on both listeners
func (s *Server) Shutdown(ctx context.Context) error {
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics shutdown error", zap.Error(err))
		}
	}
	return s.http.Shutdown(ctx)
}
