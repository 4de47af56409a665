package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/navigator"
)

const maxRankingLimit = 500

func (s *Server) getAggregate(c *gin.Context) {
	agg, ok := s.deps.Feed.View().GetAggregate(c.Param("mint"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "mint not tracked"})
		return
	}

	wallets := defaultTopWallets
	if raw := c.Query("wallets"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wallets must be a non-negative integer"})
			return
		}
		wallets = n
	}
	c.JSON(http.StatusOK, newAggregateView(&agg, wallets))
}

type rankedMint struct {
	Rank int     `json:"rank"`
	Mint string  `json:"mint"`
	TPS  float64 `json:"tps"`
}

// rankings lists mints by TPS. Stats are read from the same view as the order.
func (s *Server) rankings(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRankingLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	view := s.deps.Feed.View()
	mints := view.RankedByActivity()
	if limit > 0 && len(mints) > limit {
		mints = mints[:limit]
	}

	out := make([]rankedMint, 0, len(mints))
	for i, mint := range mints {
		r := rankedMint{Rank: i + 1, Mint: mint}
		if agg, ok := view.GetAggregate(mint); ok {
			r.TPS = agg.TPS
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"mints": out, "total": view.Len()})
}

func (s *Server) classification(c *gin.Context) {
	view := s.deps.Feed.View()

	var list []domain.MintAggregate
	switch c.Param("class") {
	case "new":
		list = view.NewlyMinted()
	case "graduating":
		list = view.AboutToGraduate()
	case "graduated":
		list = view.RecentlyGraduated()
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown class, want new, graduating or graduated"})
		return
	}

	out := make([]aggregateView, len(list))
	for i := range list {
		out[i] = newAggregateView(&list[i], 0)
	}
	c.JSON(http.StatusOK, gin.H{"class": c.Param("class"), "mints": out})
}

func (s *Server) pause(c *gin.Context) {
	changed := s.deps.Feed.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true, "changed": changed})
}

func (s *Server) resume(c *gin.Context) {
	changed := s.deps.Feed.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false, "changed": changed})
}

type createSessionRequest struct {
	Pinned string `json:"pinned"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	sess, err := s.deps.Sessions.Create(req.Pinned)
	switch {
	case errors.Is(err, navigator.ErrTooManySessions):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session limit reached"})
		return
	case err != nil:
		s.internalError(c, "create session failed", err)
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot(c.Request.Context()))
}

// session resolves :id or answers 404.
func (s *Server) session(c *gin.Context) (*navigator.Session, bool) {
	sess, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot(c.Request.Context()))
}

type advanceRequest struct {
	Direction string `json:"direction"`
}

// advanceSession moves the cursor. Direction comes from the body or ?direction=.
func (s *Server) advanceSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	req := advanceRequest{Direction: c.Query("direction")}
	if req.Direction == "" && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	dir, err := navigator.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be forward or backward"})
		return
	}

	moved, err := sess.Advance(dir)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved, "session": sess.Snapshot(c.Request.Context())})
}

func (s *Server) loadMore(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	added, err := sess.LoadMore()
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "session": sess.Snapshot(c.Request.Context())})
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.deps.Sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionError(c *gin.Context, err error) {
	if errors.Is(err, navigator.ErrNotStarted) {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not active"})
		return
	}
	s.internalError(c, "session operation failed", err)
}

func (s *Server) openPositions(c *gin.Context) {
	open := s.deps.Positions.OpenPositions()
	out := make([]positionView, len(open))
	for i := range open {
		out[i] = newPositionView(&open[i])
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) getPosition(c *gin.Context) {
	p, ok := s.deps.Positions.Position(c.Param("mint"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position"})
		return
	}
	c.JSON(http.StatusOK, newPositionView(&p))
}

func (s *Server) closedPositions(c *gin.Context) {
	closed := s.deps.Positions.ClosedPositions()
	out := make([]closedPositionView, len(closed))
	for i := range closed {
		out[i] = newClosedPositionView(&closed[i])
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) portfolio(c *gin.Context) {
	c.JSON(http.StatusOK, newPortfolioView(s.deps.Portfolio.Snapshot()))
}
