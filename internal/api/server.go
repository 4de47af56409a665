// Package api exposes the engine's read models and navigation sessions over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/feed"
	"solana-activity-engine/internal/navigator"
	"solana-activity-engine/internal/observability"
)

// Feed is the feed-facing surface: connectivity, the current view and pause control.
// *feed.Adapter implements it.
type Feed interface {
	Status() feed.Status
	View() aggregate.Reader
	Pause() bool
	Resume() bool
}

// Positions is the ledger query surface. *ledger.Ledger implements it.
type Positions interface {
	OpenPositions() []domain.Position
	Position(mint string) (domain.Position, bool)
	ClosedPositions() []domain.ClosedPosition
}

// Portfolio computes portfolio snapshots. *portfolio.Aggregator implements it.
type Portfolio interface {
	Snapshot() domain.PortfolioSnapshot
}

// Deps are the components served by the API.
type Deps struct {
	Feed      Feed
	Sessions  *navigator.Manager
	Positions Positions
	Portfolio Portfolio
	Logger    logrus.FieldLogger
	// Metrics mounts /metrics when true.
	Metrics   bool
	RateLimit RateLimitConfig
}

// Server is the HTTP query API.
type Server struct {
	deps   Deps
	logger logrus.FieldLogger
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router. gin's mode is a process-wide setting and is
// left to the caller.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	s := &Server{
		deps:   deps,
		logger: deps.Logger.WithField("component", "api"),
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler (tests).
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger), instrument(s.logger), rateLimit(s.deps.RateLimit))

	r.GET("/health", s.health)
	if s.deps.Metrics {
		r.GET("/metrics", gin.WrapH(observability.Handler()))
	}

	if s.deps.Feed != nil {
		r.GET("/status", s.status)
		r.GET("/aggregates/:mint", s.getAggregate)
		r.GET("/rankings", s.rankings)
		r.GET("/classes/:class", s.classification)

		feedGroup := r.Group("/feed")
		{
			feedGroup.POST("/pause", s.pause)
			feedGroup.POST("/resume", s.resume)
		}
	}

	if s.deps.Sessions != nil {
		sessions := r.Group("/sessions")
		{
			sessions.POST("", s.createSession)
			sessions.GET("/:id", s.getSession)
			sessions.POST("/:id/advance", s.advanceSession)
			sessions.POST("/:id/load-more", s.loadMore)
			sessions.DELETE("/:id", s.deleteSession)
		}
	}

	if s.deps.Positions != nil {
		positions := r.Group("/positions")
		{
			positions.GET("", s.openPositions)
			positions.GET("/closed", s.closedPositions)
			positions.GET("/:mint", s.getPosition)
		}
	}
	if s.deps.Portfolio != nil {
		r.GET("/portfolio", s.portfolio)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.http.Addr).Info("http api listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	st := s.deps.Feed.Status()
	resp := gin.H{"feed": st}
	if s.deps.Sessions != nil {
		resp["sessions"] = s.deps.Sessions.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// internalError logs err and answers with an opaque message.
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.WithError(err).WithField("route", c.FullPath()).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
