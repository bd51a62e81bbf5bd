package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
)

// RateLimitConfig defines per-client rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL is how long an idle client's limiter is kept
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the limits applied to realm session requests.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client IP.
type Limiter struct {
	cfg     RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*client
	sweep   time.Time
}

// NewLimiter creates a per-IP limiter
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow reports whether ip may make a request now.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	l.evict(now)

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	limiter := c.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// evict drops idle clients at most once per IdleTTL. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	if now.Sub(l.sweep) < l.cfg.IdleTTL {
		return
	}
	l.sweep = now
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.cfg.IdleTTL {
			delete(l.clients, ip)
		}
	}
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	limiter := NewLimiter(cfg)
	logger = logging.OrNop(logger)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			logger.Debug("Rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
