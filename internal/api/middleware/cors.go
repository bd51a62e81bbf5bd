package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin to open realm sessions and read health.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Accept",
			"Content-Type",
			"Sec-WebSocket-Protocol",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:    cfg.AllowOrigins,
		AllowMethods:    cfg.AllowMethods,
		AllowHeaders:    cfg.AllowHeaders,
		AllowWebSockets: true,
		MaxAge:          cfg.MaxAge,
	})
}
