package libraryserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	APIPrefix = "/api"

	shutdownTimeout = 10 * time.Second
)

var (
	// ErrNilRepository is returned by New when no repository is supplied.
	ErrNilRepository = errors.New("nil repository supplied")

	// ErrNilClock is returned by WithClock(nil).
	ErrNilClock = errors.New("nil clock supplied")
)

// Option configures a Server.
type Option func(*Server) error

// WithClock replaces time.Now for due date validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		if now == nil {
			return ErrNilClock
		}

		s.now = now

		return nil
	}
}

// WithLogger sets the request logger. Without it requests are not logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithCORSOrigins allows browser clients from the given origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.corsOrigins = origins
		return nil
	}
}

// WithRegistry registers the server metrics with registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) error {
		s.registry = registry
		return nil
	}
}

// Server serves the library API.
type Server struct {
	service     *Service
	now         func() time.Time
	logger      *slog.Logger
	corsOrigins []string
	registry    *prometheus.Registry
	metrics     *serverMetrics
	engine      *gin.Engine
}

// New creates a Server on top of repo.
func New(repo Repository, options ...Option) (*Server, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}

	s := &Server{
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	metrics, err := newServerMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	s.service = NewService(repo, s.now)
	s.engine = s.routes()

	return s, nil
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	s.logger.Info("library server listening", slog.String("addr", addr))

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(s.logger), instrument(s.metrics))

	if len(s.corsOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  s.corsOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", headerRequestID},
			ExposeHeaders: []string{"Content-Length", headerRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}

	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	h := &handler{service: s.service, metrics: s.metrics}
	h.register(engine.Group(APIPrefix))

	return engine
}
