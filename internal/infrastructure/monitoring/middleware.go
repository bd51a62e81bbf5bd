package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// FullPath keeps label cardinality bounded for unmatched routes
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures the duration of one forwarded command.
type Timer struct {
	start     time.Time
	metrics   *Metrics
	direction string
	kind      string
	mode      string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, direction, kind, mode string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		direction: direction,
		kind:      kind,
		mode:      mode,
	}
}

// Stop stops the timer and records the forward.
func (t *Timer) Stop(err error) {
	t.metrics.RecordForward(t.direction, t.kind, t.mode, err, time.Since(t.start))
}
