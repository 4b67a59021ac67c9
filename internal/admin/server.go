// Package admin serves the relay's HTTP side door: health and
// readiness probes, Prometheus metrics, a JSON view of active shares,
// the user directory endpoints, and a WebSocket feed of the share list.
package admin

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"

	"sharerelay/config"
	"sharerelay/internal/directory"
	"sharerelay/internal/metrics"
	"sharerelay/internal/registry"
	"sharerelay/internal/stream"
	"sharerelay/util"
)

// LinkLister reports the stream relay's per-user link state.
type LinkLister interface {
	Links() []stream.LinkInfo
}

// Server is the admin HTTP server.
type Server struct {
	Registry  *registry.Registry
	Links     LinkLister
	Directory *directory.Service
	Metrics   *metrics.Collector
	Logger    *util.Logger

	// GracePeriod bounds the drain on shutdown.
	GracePeriod time.Duration

	router *gin.Engine
}

// New wires the routes.  links may be nil when no relay is running.
func New(
	reg *registry.Registry,
	links LinkLister,
	dir *directory.Service,
	m *metrics.Collector,
	rl config.RateLimitConfig,
	logger *util.Logger,
) *Server {
	s := &Server{
		Registry:    reg,
		Links:       links,
		Directory:   dir,
		Metrics:     m,
		Logger:      logger.Named("admin"),
		GracePeriod: config.DefaultGracePeriod,
	}

	if logger.Level() > zapcore.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), rateLimit(rl))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(m), promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		api.GET("/stats", s.stats)
		api.GET("/shares", s.shares)

		api.POST("/users/register", s.register)
		api.POST("/users/authenticate", s.authenticate)
		api.GET("/users/:username/exists", s.userExists)

		api.POST("/invitations", s.createInvitation)
		api.GET("/invitations/:code", s.invitationStatus)
		api.POST("/invitations/validate", s.validateInvitation)
	}

	r.GET("/ws/shares", s.shareFeed)

	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains for up to
// GracePeriod.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Infow("admin server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.GracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Warnw("admin shutdown incomplete, forcing close", "error", err)
		return srv.Close()
	}
	s.Logger.Debugw("admin server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"took", time.Since(start),
		)
	}
}
