// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ppiankov/tactimerge/internal/ingest"
	"github.com/ppiankov/tactimerge/internal/metrics"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/pipeline"
	"github.com/ppiankov/tactimerge/internal/predict"
)

// Service is the part of the pipeline the API serves.
type Service interface {
	Query(team, eraRange, competition, intent string) (model.Query, error)
	Analyze(ctx context.Context, q model.Query, k int) (*pipeline.Analysis, error)
	Predict(ctx context.Context, a, b model.Query, k int) (*model.PredictionResult, error)
	Compare(ctx context.Context, a, b model.Query, k int, fill string) (*predict.Comparison, error)
	Ingest(ctx context.Context, doc ingest.RawDocument, tags ingest.Tags, opts ingest.Options) (ingest.Result, error)
	Health(ctx context.Context) (pipeline.Health, error)
	Metrics() *metrics.Metrics
}

// Server is the HTTP front of a pipeline.
type Server struct {
	echo    *echo.Echo
	svc     Service
	cfg     model.ServerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a server and registers its routes.
func New(svc Service, cfg model.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, svc: svc, cfg: cfg, metrics: svc.Metrics(), logger: logger}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(s.observe)

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.POST("/analyze", s.handleAnalyze)
	e.POST("/predict", s.handlePredict)
	e.POST("/compare", s.handleCompare)
	e.POST("/ingest", s.handleIngest)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.echo,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// observe bounds each request by the configured timeout and records its
// outcome in logs and metrics.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if s.cfg.RequestTimeout > 0 {
			ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.RequestTimeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
		}

		err := next(c)

		code := ""
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = httpCode(he.Code)
			} else {
				code = string(model.KindOf(err))
			}
		}
		op := c.Path()
		if op == "" {
			op = "unmatched"
		}
		d := time.Since(start)
		s.metrics.Request(op, code, d)
		s.logger.Debug("request",
			"method", c.Request().Method,
			"path", op,
			"code", code,
			"duration", d)
		return err
	}
}
