// Package api serves session status, the manual exit switch and metrics
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"straddle-trader/internal/logging"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/scheduler"
	"straddle-trader/internal/strategy"
)

// Sessions exposes the running and last finished sessions.
type Sessions interface {
	Current() scheduler.Runner
	Last() (strategy.Result, bool)
	Skipped() string
}

// Flags writes control keys into the price cache.
type Flags interface {
	SetFlag(ctx context.Context, key string, value bool) error
}

// Config configures the server.
type Config struct {
	Addr          string
	ManualExitKey string
}

// Deps are the server's collaborators.
type Deps struct {
	Sessions Sessions
	Flags    Flags
	Metrics  *metrics.Metrics
	Health   *Health
	Logger   zerolog.Logger
}

// Server is the status and control HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: gin.New(),
		logger: logging.WithComponent(deps.Logger, "api"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/status", s.status)
	s.engine.POST("/exit", s.exit)
	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		logging.LogAPICall(s.logger, c.Request.Method, c.FullPath(), time.Since(start), err)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	h := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if h.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

type resultView struct {
	SessionID string            `json:"session_id"`
	Snapshot  strategy.Snapshot `json:"snapshot"`
	Error     string            `json:"error,omitempty"`
}

type statusView struct {
	Running   bool               `json:"running"`
	SessionID string             `json:"session_id,omitempty"`
	Session   *strategy.Snapshot `json:"session,omitempty"`
	Last      *resultView        `json:"last,omitempty"`
	Skipped   string             `json:"skipped,omitempty"`
}

func (s *Server) status(c *gin.Context) {
	var v statusView
	if s.deps.Sessions == nil {
		c.JSON(http.StatusOK, v)
		return
	}

	if cur := s.deps.Sessions.Current(); cur != nil {
		snap := cur.Snapshot()
		v.Running = true
		v.SessionID = cur.ID()
		v.Session = &snap
	}
	if res, ok := s.deps.Sessions.Last(); ok {
		rv := &resultView{SessionID: res.SessionID, Snapshot: res.Snapshot}
		if res.Err != nil {
			rv.Error = res.Err.Error()
		}
		v.Last = rv
	}
	v.Skipped = s.deps.Sessions.Skipped()
	c.JSON(http.StatusOK, v)
}

func (s *Server) exit(c *gin.Context) {
	if s.deps.Flags == nil || s.cfg.ManualExitKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "manual exit is not configured"})
		return
	}
	if err := s.deps.Flags.SetFlag(c.Request.Context(), s.cfg.ManualExitKey, true); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Warn().Str("key", s.cfg.ManualExitKey).Msg("Manual exit requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "exit requested"})
}
