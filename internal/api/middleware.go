package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"solana-activity-engine/internal/observability"
)

// RateLimitConfig configures per-client rate limiting.
// RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// MaxClients bounds the limiter table; it is reset when exceeded.
	MaxClients int
}

const defaultMaxClients = 1000

// limiterTable stores one limiter per client IP.
type limiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      RateLimitConfig
}

func newLimiterTable(cfg RateLimitConfig) *limiterTable {
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Ceil(cfg.RequestsPerSecond))
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	return &limiterTable{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

func (t *limiterTable) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[ip]
	if !ok {
		if len(t.limiters) >= t.cfg.MaxClients {
			t.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
		t.limiters[ip] = l
	}
	return l
}

// rateLimit rejects clients that exceed their budget with 429.
func rateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	table := newLimiterTable(cfg)

	return func(c *gin.Context) {
		limiter := table.get(c.ClientIP())
		if !limiter.Allow() {
			retryAfter := int(math.Ceil(1 / cfg.RequestsPerSecond))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded, try again later",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// instrument records request counts by route template and logs each request.
func instrument(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		observability.RecordHTTPRequest(route, strconv.Itoa(status))

		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"route":   route,
			"status":  status,
			"latency": time.Since(start),
		}).Debug("request served")
	}
}

// recovery turns handler panics into an opaque 500.
func recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		logger.WithField("panic", err).WithField("route", c.FullPath()).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}
