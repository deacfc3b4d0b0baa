package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig lists what browsers may call the query server from
type CORSConfig struct {
	AllowOrigins  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig allows the local dev frontend to read query results
func DefaultCORSConfig(origins ...string) CORSConfig {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return CORSConfig{
		AllowOrigins:  origins,
		AllowHeaders:  []string{"Accept", "Content-Type", "Origin", "X-Correlation-ID"},
		ExposeHeaders: []string{"X-Correlation-ID", "Retry-After"},
		MaxAge:        time.Hour,
	}
}

// CORS returns a read-only CORS middleware; only GET, HEAD and OPTIONS are allowed
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: cfg.ExposeHeaders,
		MaxAge:        cfg.MaxAge,
	})
}
