package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := logger.Debug()
		if status >= 500 {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	}
}
