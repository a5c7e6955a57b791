// Package stubserver is an in-memory stand-in for the CareerPilot backend:
// the identity endpoints plus enough of the job-portal API to drive the CLI
// locally and in tests.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sobandev/careerpilot-ai/internal/metrics"
	"github.com/sobandev/careerpilot-ai/internal/portal"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	maxResumeSize     = 10 << 20
)

// Config holds the stub server configuration.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// SecureCookies marks session cookies Secure. Cookie jars do not send
	// Secure cookies over plain HTTP, so it stays off for local use.
	SecureCookies bool
	Registry      *prometheus.Registry
	Logger        *slog.Logger
}

// Server is the stub backend.
type Server struct {
	echo     *echo.Echo
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Stub
	registry *prometheus.Registry

	mu           sync.RWMutex
	users        map[string]*account // by id
	emails       map[string]string   // email -> id
	sessions     map[string]*grant   // by session id
	jobs         []portal.Job
	applications []*application
	resumes      map[string]*resume
	roadmaps     map[string][]portal.Record
	companies    map[string]portal.Record // by owner id
}

// New creates a stub server with a seeded job catalogue.
func New(cfg Config) (*Server, error) {
	if cfg.Secret == "" {
		return nil, errors.New("stubserver: signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   metrics.NewStub(cfg.Registry),
		registry:  cfg.Registry,
		users:     make(map[string]*account),
		emails:    make(map[string]string),
		sessions:  make(map[string]*grant),
		resumes:   make(map[string]*resume),
		roadmaps:  make(map[string][]portal.Record),
		companies: make(map[string]portal.Record),
	}
	s.seed()
	s.echo = s.routes()
	return s, nil
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting stub server", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stub server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.DebugContext(c.Request().Context(), "request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	auth := e.Group("/api/auth")
	auth.POST("/register", s.register)
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)
	auth.POST("/refresh", s.refresh)
	auth.GET("/me", s.me, s.requireUser)

	jobs := e.Group("/api/jobs")
	jobs.GET("", s.listJobs)
	jobs.POST("", s.createJob, s.requireUser)
	jobs.GET("/feed", s.feed, s.requireUser)
	jobs.GET("/:id", s.getJob)
	jobs.GET("/:id/score", s.jobScore, s.requireUser)

	apps := e.Group("/api/applications", s.requireUser)
	apps.POST("", s.apply)
	apps.GET("", s.listApplications)
	apps.GET("/employer", s.employerApplications)
	apps.PATCH("/:id/status", s.updateApplicationStatus)

	res := e.Group("/api/resume", s.requireUser)
	res.POST("/upload", s.uploadResume)
	res.GET("/analysis", s.resumeAnalysis)

	ai := e.Group("/api/ai", s.requireUser)
	ai.POST("/roadmap", s.generateRoadmap)
	ai.GET("/roadmap", s.latestRoadmap)
	ai.POST("/company", s.upsertCompany)
	ai.GET("/company/me", s.myCompany)
	ai.GET("/employer/stats", s.employerStats)

	profiles := e.Group("/api/profiles")
	profiles.PUT("/me", s.updateProfile, s.requireUser)
	profiles.GET("/:id", s.publicProfile)

	return e
}

// handleError renders every error as {"detail": ...}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := any("Internal server error")
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		detail = he.Message
	} else {
		s.logger.ErrorContext(c.Request().Context(), "unhandled stub error", "error", err)
	}

	if status == http.StatusUnauthorized {
		s.metrics.Rejected.Inc()
	}
	if err := c.JSON(status, map[string]any{"detail": detail}); err != nil {
		s.logger.WarnContext(c.Request().Context(), "writing error response", "error", err)
	}
}

func detailError(status int, detail string) *echo.HTTPError {
	return echo.NewHTTPError(status, detail)
}
