// Package server assembles the job-control HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/scoutalgo/clover/pkg/middleware"
	"github.com/scoutalgo/clover/pkg/routes/health"
	"github.com/scoutalgo/clover/pkg/routes/reviews"
	"github.com/scoutalgo/clover/pkg/routes/runs"
)

// Config holds the listener settings
type Config struct {
	ServiceName       string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
}

// Server is the HTTP server. It implements startup.StartupDependency.
type Server struct {
	echo   *echo.Echo
	http   *http.Server
	health *health.Checker
	logger ectologger.Logger
	errc   chan error
}

// New wires middleware and routes
func New(cfg Config, logger ectologger.Logger, checker *health.Checker, runHandler *runs.Handler, reviewHandler *reviews.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	runHandler.Register(v1.Group("/matching/runs"))
	reviewHandler.Register(v1.Group("/reviews"))

	return &Server{
		echo:   e,
		health: checker,
		logger: logger,
		errc:   make(chan error, 1),
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           e,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Errors reports a listener failure after Start returned
func (s *Server) Errors() <-chan error {
	return s.errc
}

func (s *Server) GetName() string {
	return "http"
}

func (s *Server) DependsOn() []string {
	return []string{"database"}
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	s.health.SetReady(true)
	s.logger.WithContext(ctx).Infof("HTTP server listening on %s", s.http.Addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.health.SetReady(false)
	return s.http.Shutdown(ctx)
}
