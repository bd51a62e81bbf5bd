// Package http provides the HTTP handlers of a realm host.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/realmbridge/internal/realm"
	"github.com/GriffinCanCode/realmbridge/internal/session"
)

// PoolStats is satisfied by realm.Pool
type PoolStats interface {
	Stats() realm.PoolStats
}

// Handlers serves the non-websocket routes
type Handlers struct {
	pool      PoolStats
	sessions  *session.Manager
	startedAt time.Time
}

// NewHandlers creates the handler set
func NewHandlers(pool PoolStats, sessions *session.Manager) *Handlers {
	return &Handlers{
		pool:      pool,
		sessions:  sessions,
		startedAt: time.Now(),
	}
}

// Health reports pool and session state. It answers 503 once the pool is
// closed.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.pool.Stats()

	status, code := "healthy", http.StatusOK
	if stats.Closed {
		status, code = "closing", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"pool":     stats,
		"sessions": h.sessions.Stats(),
	})
}

// ListSessions lists the live realm sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.sessions.List()
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"stats":    h.sessions.Stats(),
	})
}
